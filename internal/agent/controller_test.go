package agent

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tiendamx/asistente-catalogo/internal/llm"
	"github.com/tiendamx/asistente-catalogo/internal/session"
	"github.com/tiendamx/asistente-catalogo/internal/store"
	"github.com/tiendamx/asistente-catalogo/internal/tools"
)

const testBranch = "san_luis_potosi"

func testRegistry(t *testing.T, summarizer llm.Client) *tools.Registry {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	st, err := store.New(db, slog.Default())
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}

	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		_, err := st.ImportProduct(ctx, store.ProductRecord{
			SupplierID:  fmt.Sprintf("SY-%d", i),
			Model:       fmt.Sprintf("RB-%d", i),
			Title:       fmt.Sprintf("Router MikroTik %d", i),
			Description: "<p>Router administrable.</p>",
			Brand:       "MikroTik",
			Price: &store.Price{
				Discount: sql.NullFloat64{Float64: 100 * float64(i), Valid: true},
				Margin:   20,
			},
			Stock: map[string]int{testBranch: i},
		})
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	reg := tools.NewRegistry()
	reg.Register(tools.NewSearchTool(st, testBranch, slog.Default()))
	reg.Register(tools.NewDetailTool(st, summarizer, testBranch,
		tools.SummaryConfig{MaxTokens: 150, Temperature: 0.2}, slog.Default()))
	return reg
}

func newController(client llm.Client, reg *tools.Registry) *Controller {
	return New(client, reg, Config{MaxIterations: 10, TurnTimeout: 5 * time.Second}, slog.Default())
}

func TestSearchThenAnswer(t *testing.T) {
	client := llm.NewScriptedClient(
		"Thought: Debo buscar productos.\nAction: search_products\nAction Input: \"routers mikrotik\"",
		"Thought: Ya conozco la respuesta final.\nFinal Answer: Encontré 3 routers MikroTik.",
	)
	reg := testRegistry(t, llm.NewScriptedClient("resumen"))
	c := newController(client, reg)
	sess := &session.Session{ID: "s1"}

	answer, err := c.HandleTurn(context.Background(), sess, "busca routers mikrotik")
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if answer != "Encontré 3 routers MikroTik." {
		t.Errorf("answer = %q", answer)
	}
	if len(sess.LastSearchIDs) != 3 {
		t.Errorf("LastSearchIDs = %v, want 3 cached ids", sess.LastSearchIDs)
	}

	// Second call carries the search observation.
	calls := client.Calls()
	if len(calls) != 2 {
		t.Fatalf("LLM calls = %d, want 2", len(calls))
	}
	last := calls[1].Messages[len(calls[1].Messages)-1]
	if !strings.HasPrefix(last.Content, "Observation: ") || !strings.Contains(last.Content, "Router MikroTik 1") {
		t.Errorf("observation message = %q", last.Content)
	}

	// History gained the user turn and the agent turn after the seeded greeting.
	h := sess.ChatHistory
	if len(h) != 3 || h[0].Content != Greeting || h[1].Type != "user" || h[2].Type != "agent" {
		t.Errorf("history = %+v", h)
	}
}

func TestDetailTurnUpdatesSnapshot(t *testing.T) {
	client := llm.NewScriptedClient(
		"Thought: Piden detalles.\nAction: get_product_details\nAction Input: 2",
		"Thought: Listo.\nFinal Answer: El producto 2 es el Router MikroTik 2. ¿Quieres la descripción completa? Di sí o más",
	)
	reg := testRegistry(t, llm.NewScriptedClient("Resumen del producto."))
	c := newController(client, reg)
	sess := &session.Session{ID: "s1"}
	sess.Append("agent", Greeting)

	// Prime the cache the way a prior search turn would.
	searchClient := llm.NewScriptedClient(
		"Thought: Buscar.\nAction: search_products\nAction Input: mikrotik",
		"Thought: Listo.\nFinal Answer: 3 resultados.",
	)
	if _, err := newController(searchClient, reg).HandleTurn(context.Background(), sess, "busca mikrotik"); err != nil {
		t.Fatalf("search turn: %v", err)
	}

	if _, err := c.HandleTurn(context.Background(), sess, "detalles del 2"); err != nil {
		t.Fatalf("detail turn: %v", err)
	}
	if sess.LastProductDetails == nil || sess.LastProductDetails.Title != "Router MikroTik 2" {
		t.Errorf("LastProductDetails = %+v", sess.LastProductDetails)
	}
}

func TestAffirmationShortCircuit(t *testing.T) {
	client := llm.NewScriptedClient() // any LLM call would error
	reg := testRegistry(t, llm.NewScriptedClient())
	c := newController(client, reg)

	sess := &session.Session{ID: "s1"}
	sess.Append("agent", Greeting)
	sess.SetDetails(&session.ProductDetails{
		Title:       "Router MikroTik 1",
		Description: "Router administrable de 5 puertos Gigabit.",
	})

	for _, word := range []string{"sí", "si", "más", " Sí "} {
		answer, err := c.HandleTurn(context.Background(), sess, word)
		if err != nil {
			t.Fatalf("HandleTurn(%q): %v", word, err)
		}
		if answer != "Router administrable de 5 puertos Gigabit." {
			t.Errorf("answer(%q) = %q, want cached description", word, answer)
		}
	}
	if client.CallCount() != 0 {
		t.Errorf("LLM called %d times, want 0 for affirmation turns", client.CallCount())
	}
}

func TestAffirmationWithoutDetailsGoesToModel(t *testing.T) {
	client := llm.NewScriptedClient(
		"Thought: No hay búsqueda previa.\nFinal Answer: Primero busca un producto, por ejemplo 'busca cámaras'.",
	)
	reg := testRegistry(t, llm.NewScriptedClient())
	c := newController(client, reg)
	sess := &session.Session{ID: "s1"}

	answer, err := c.HandleTurn(context.Background(), sess, "sí")
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if client.CallCount() != 1 {
		t.Errorf("LLM calls = %d, want 1", client.CallCount())
	}
	if !strings.Contains(answer, "busca") {
		t.Errorf("answer = %q", answer)
	}
}

func TestFabricatedObservationDiscarded(t *testing.T) {
	client := llm.NewScriptedClient(
		"Thought: Buscar.\nAction: search_products\nAction Input: mikrotik\nObservation: [{\"title\": \"Producto Inventado\"}]\nFinal Answer: El Producto Inventado cuesta $1.",
		"Thought: Listo.\nFinal Answer: Hay 3 routers.",
	)
	reg := testRegistry(t, llm.NewScriptedClient())
	c := newController(client, reg)
	sess := &session.Session{ID: "s1"}

	answer, err := c.HandleTurn(context.Background(), sess, "busca mikrotik")
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if answer != "Hay 3 routers." {
		t.Errorf("answer = %q, want the post-observation answer", answer)
	}
	calls := client.Calls()
	obs := calls[1].Messages[len(calls[1].Messages)-1].Content
	if strings.Contains(obs, "Inventado") {
		t.Errorf("fabricated observation leaked into the loop: %q", obs)
	}
}

func TestMalformedStepRetried(t *testing.T) {
	client := llm.NewScriptedClient(
		"Claro, te ayudo con gusto a buscar routers.",
		"Thought: Buscar.\nAction: search_products\nAction Input: mikrotik",
		"Thought: Listo.\nFinal Answer: 3 resultados.",
	)
	reg := testRegistry(t, llm.NewScriptedClient())
	c := newController(client, reg)
	sess := &session.Session{ID: "s1"}

	answer, err := c.HandleTurn(context.Background(), sess, "busca mikrotik")
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if answer != "3 resultados." {
		t.Errorf("answer = %q", answer)
	}
	calls := client.Calls()
	if len(calls) != 3 {
		t.Fatalf("LLM calls = %d, want 3", len(calls))
	}
	corrective := calls[1].Messages[len(calls[1].Messages)-1].Content
	if !strings.Contains(corrective, "Formato inválido") {
		t.Errorf("corrective observation = %q", corrective)
	}
}

func TestUnknownActionGetsErrorObservation(t *testing.T) {
	client := llm.NewScriptedClient(
		"Thought: Usaré otra herramienta.\nAction: borrar_catalogo\nAction Input: todo",
		"Thought: Esa herramienta no existe.\nFinal Answer: No puedo hacer eso.",
	)
	reg := testRegistry(t, llm.NewScriptedClient())
	c := newController(client, reg)
	sess := &session.Session{ID: "s1"}

	if _, err := c.HandleTurn(context.Background(), sess, "borra todo"); err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	calls := client.Calls()
	obs := calls[1].Messages[len(calls[1].Messages)-1].Content
	if !strings.Contains(obs, "Herramienta desconocida: borrar_catalogo") {
		t.Errorf("observation = %q", obs)
	}
}

func TestIterationCapFallsBack(t *testing.T) {
	var script []string
	for i := 0; i < 10; i++ {
		script = append(script, "Thought: Buscar otra vez.\nAction: search_products\nAction Input: mikrotik")
	}
	client := llm.NewScriptedClient(script...)
	reg := testRegistry(t, llm.NewScriptedClient())
	c := New(client, reg, Config{MaxIterations: 3, TurnTimeout: 5 * time.Second}, slog.Default())
	sess := &session.Session{ID: "s1"}

	answer, err := c.HandleTurn(context.Background(), sess, "busca mikrotik")
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if answer != fallbackAnswer {
		t.Errorf("answer = %q, want fallback", answer)
	}
	if client.CallCount() != 3 {
		t.Errorf("LLM calls = %d, want the iteration cap", client.CallCount())
	}
	// The failed turn is still recorded.
	last := sess.ChatHistory[len(sess.ChatHistory)-1]
	if last.Type != "agent" || last.Content != fallbackAnswer {
		t.Errorf("last turn = %+v", last)
	}
}

func TestModelFailurePropagates(t *testing.T) {
	client := llm.NewScriptedClient().FailWith(fmt.Errorf("connection refused"))
	reg := testRegistry(t, llm.NewScriptedClient())
	c := newController(client, reg)
	sess := &session.Session{ID: "s1"}

	if _, err := c.HandleTurn(context.Background(), sess, "busca algo"); err == nil {
		t.Fatal("HandleTurn returned nil error on model failure")
	}
}

func TestGreetingSeededOnce(t *testing.T) {
	client := llm.NewScriptedClient(
		"Thought: Saludo.\nFinal Answer: ¡Hola!",
		"Thought: Saludo.\nFinal Answer: ¡Hola otra vez!",
	)
	reg := testRegistry(t, llm.NewScriptedClient())
	c := newController(client, reg)
	sess := &session.Session{ID: "s1"}

	if _, err := c.HandleTurn(context.Background(), sess, "hola"); err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	if _, err := c.HandleTurn(context.Background(), sess, "hola de nuevo"); err != nil {
		t.Fatalf("turn 2: %v", err)
	}

	greetings := 0
	for _, turn := range sess.ChatHistory {
		if turn.Content == Greeting {
			greetings++
		}
	}
	if greetings != 1 {
		t.Errorf("greeting appears %d times, want 1", greetings)
	}
}

func TestClearSessionIdempotent(t *testing.T) {
	reg := testRegistry(t, llm.NewScriptedClient())
	c := newController(llm.NewScriptedClient(), reg)

	sess := &session.Session{ID: "s1"}
	sess.Append("user", "busca routers")
	sess.SetSearchIDs([]int64{1, 2})
	sess.SetDetails(&session.ProductDetails{Title: "x"})

	first := c.ClearSession(sess)
	second := c.ClearSession(sess)
	if first != Greeting || second != Greeting {
		t.Errorf("greetings = %q, %q", first, second)
	}
	if len(sess.ChatHistory) != 1 || sess.ChatHistory[0].Content != Greeting {
		t.Errorf("history = %+v", sess.ChatHistory)
	}
	if sess.LastSearchIDs != nil || sess.LastProductDetails != nil {
		t.Error("caches not cleared")
	}
}

func TestOpeningMessageCarriesState(t *testing.T) {
	client := llm.NewScriptedClient("Thought: ok.\nFinal Answer: listo.")
	reg := testRegistry(t, llm.NewScriptedClient())
	c := newController(client, reg)

	sess := &session.Session{ID: "s1"}
	sess.Append("agent", Greeting)
	sess.SetSearchIDs([]int64{7, 8, 9})
	sess.SetDetails(&session.ProductDetails{Title: "Router MikroTik 1", Description: "desc"})

	if _, err := c.HandleTurn(context.Background(), sess, "¿y el precio?"); err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}

	opening := client.Calls()[0].Messages[0].Content
	for _, part := range []string{"7, 8, 9", "Router MikroTik 1", "Question: ¿y el precio?", Greeting} {
		if !strings.Contains(opening, part) {
			t.Errorf("opening message missing %q:\n%s", part, opening)
		}
	}
}
