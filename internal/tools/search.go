package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/tiendamx/asistente-catalogo/internal/htmltext"
	"github.com/tiendamx/asistente-catalogo/internal/session"
	"github.com/tiendamx/asistente-catalogo/internal/store"
)

// SearchItem is one search result as serialized into the Observation.
type SearchItem struct {
	Ordinal     int    `json:"ordinal"`
	ExternalID  string `json:"external_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Brand       string `json:"brand"`
	Category    string `json:"category"`
	Price       string `json:"price"`
	BranchStock int    `json:"branch_stock"`
	TotalStock  int    `json:"total_stock"`
}

// maxResults caps a search; ordinals address positions 1 through 5.
const maxResults = 5

// wordToken matches Unicode word characters, so Spanish diacritics and
// digits survive tokenization.
var wordToken = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// NewSearchTool builds the catalog search tool. Results are gated on
// positive stock at branchSlug.
func NewSearchTool(st *store.Store, branchSlug string, logger *slog.Logger) *Tool {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "search_tool")

	return &Tool{
		Name:        "search_products",
		Description: "Busca productos en el catálogo por texto libre. Entrada: la consulta del usuario. Devuelve hasta 5 resultados numerados.",
		Handler: func(ctx context.Context, input string, sess *session.Session) (string, error) {
			query := cleanQuery(input)
			tokens := tokenize(query)
			if len(tokens) == 0 {
				return errorPayload("Consulta vacía o no válida."), nil
			}

			hits, err := st.FindProducts(ctx, tokens, branchSlug, maxResults)
			if err != nil {
				return "", fmt.Errorf("buscar productos: %w", err)
			}
			if len(hits) == 0 {
				// Cache untouched; the previous result list stays
				// addressable. The message echoes the input as given,
				// not the cleaned query.
				return errorPayload(fmt.Sprintf("No products found for '%s'", input)), nil
			}

			ids := make([]int64, len(hits))
			items := make([]SearchItem, len(hits))
			for i, h := range hits {
				ids[i] = h.ID
				items[i] = SearchItem{
					Ordinal:     i + 1,
					ExternalID:  h.SupplierID,
					Title:       h.Title,
					Description: htmltext.Truncate(h.Description, 200),
					Brand:       orDefault(h.Brand, "Unknown"),
					Category:    orDefault(h.Category, "Sin categoría"),
					Price:       store.FormatPrice(&h.Price),
					BranchStock: h.BranchQty,
					TotalStock:  h.TotalQty,
				}
			}
			sess.SetSearchIDs(ids)
			logger.Debug("search completed", "query", query, "results", len(hits))

			out, err := json.Marshal(items)
			if err != nil {
				return "", fmt.Errorf("serialize results: %w", err)
			}
			return string(out), nil
		},
	}
}

// cleanQuery keeps only the first line of the model-supplied input and
// trims the quoting the model tends to wrap it in. Multi-line input is
// never searched whole.
func cleanQuery(input string) string {
	line, _, _ := strings.Cut(input, "\n")
	return strings.Trim(line, " \t\"'`()")
}

func tokenize(query string) []string {
	return wordToken.FindAllString(strings.ToLower(query), -1)
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
