package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tiendamx/asistente-catalogo/internal/htmltext"
	"github.com/tiendamx/asistente-catalogo/internal/llm"
	"github.com/tiendamx/asistente-catalogo/internal/ordinal"
	"github.com/tiendamx/asistente-catalogo/internal/session"
	"github.com/tiendamx/asistente-catalogo/internal/store"
)

// summaryFallback replaces the LLM summary whenever summarization
// fails. Summaries are best-effort; a detail view never fails because
// of one.
const summaryFallback = "(No se pudo generar resumen)"

const summarySystem = "Eres un asistente de una tienda en línea. Resume la siguiente descripción de producto en máximo 4 oraciones, en español."

// descriptionLimit bounds the sanitized description kept in the
// snapshot.
const descriptionLimit = 1000

// SummaryConfig tunes the best-effort description summarization.
// Model overrides the client's default model; empty keeps it.
type SummaryConfig struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// NewDetailTool builds the detail-lookup tool. It resolves an ordinal
// against the session's last search, loads the product, and caches one
// detail snapshot in the session.
func NewDetailTool(st *store.Store, client llm.Client, branchSlug string, sum SummaryConfig, logger *slog.Logger) *Tool {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "detail_tool")

	return &Tool{
		Name:        "get_product_details",
		Description: "Muestra los detalles completos de un producto de la última búsqueda. Entrada: el número del producto (1-5, en cifra o en palabras).",
		Handler: func(ctx context.Context, input string, sess *session.Session) (string, error) {
			if len(sess.LastSearchIDs) == 0 {
				return errorPayload("Primero realiza una búsqueda de productos."), nil
			}

			idx, ok := ordinal.Resolve(input)
			if !ok {
				return errorPayload("No se encontró un número válido (1-5 o en palabras) en la solicitud."), nil
			}
			if idx < 1 || idx > len(sess.LastSearchIDs) {
				return errorPayload(fmt.Sprintf(
					"Índice fuera de rango. Elige un número entre 1 y %d.", len(sess.LastSearchIDs))), nil
			}

			d, err := st.GetProduct(ctx, sess.LastSearchIDs[idx-1], branchSlug)
			if errors.Is(err, store.ErrNotFound) {
				// Deleted by sync between the search and this lookup.
				return errorPayload("Producto no encontrado."), nil
			}
			if err != nil {
				return "", fmt.Errorf("detalles producto: %w", err)
			}

			clean := htmltext.Strip(d.Description)
			summary := summaryFallback
			if clean != "" {
				if s, err := summarize(ctx, client, clean, sum); err != nil {
					logger.Warn("summary failed", "product_id", d.ID, "error", err)
				} else {
					summary = s
				}
			}

			snap := &session.ProductDetails{
				Title:       d.Title,
				Model:       d.Model,
				Brand:       orDefault(d.Brand, "Sin marca"),
				Price:       store.FormatPrice(d.Price),
				BranchStock: d.BranchQty,
				Categories:  d.Categories,
				Features:    d.Features,
				Summary:     summary,
				Description: htmltext.Truncate(clean, descriptionLimit),
			}
			sess.SetDetails(snap)
			logger.Debug("details served", "product_id", d.ID, "ordinal", idx)

			out, err := json.Marshal(snap)
			if err != nil {
				return "", fmt.Errorf("serialize details: %w", err)
			}
			return string(out), nil
		},
	}
}

func summarize(ctx context.Context, client llm.Client, text string, sum SummaryConfig) (string, error) {
	resp, err := client.Chat(ctx, llm.Request{
		Model:       sum.Model,
		System:      summarySystem,
		Messages:    []llm.Message{{Role: "user", Content: text}},
		Temperature: sum.Temperature,
		MaxTokens:   sum.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	if resp == "" {
		return "", fmt.Errorf("empty summary")
	}
	return resp, nil
}
