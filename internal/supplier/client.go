// Package supplier implements the client for the upstream catalog API.
//
// The supplier exposes a Syscom-style REST API: OAuth client-credentials
// token, product search and detail endpoints (detail optionally includes
// per-branch inventory), and a USD→MXN exchange rate endpoint. Only
// inventory sync talks to it; the assistant never does.
package supplier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tiendamx/asistente-catalogo/internal/httpkit"
)

// Client talks to the supplier API. Safe for concurrent use; the
// access token is refreshed lazily and shared across calls.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	logger       *slog.Logger

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewClient creates a supplier API client. timeout bounds every HTTP
// call; zero means 15 seconds.
func NewClient(baseURL, clientID, clientSecret string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(timeout),
			httpkit.WithRetry(2, 500*time.Millisecond),
			httpkit.WithLogger(logger),
		),
		logger: logger.With("component", "supplier"),
	}
}

// Product is the supplier's product payload, normalized. Price strings
// arrive as "1234.56"; Categories may be flattened from objects.
type Product struct {
	SupplierID  string
	Model       string
	Title       string
	Description string
	Warranty    string
	Brand       string
	MainImage   string
	Categories  []string
	Features    []string
	PriceNormal float64
	PriceSpec   float64
	PriceDisc   float64
	PriceList   float64
	TotalStock  int
	BranchStock map[string]int // branch slug → quantity
}

// rawProduct mirrors the wire format. Several fields are
// "sometimes-list, sometimes-object" on the real API; the custom
// decoding below normalizes them.
type rawProduct struct {
	ProductoID  json.Number       `json:"producto_id"`
	Modelo      string            `json:"modelo"`
	Titulo      string            `json:"titulo"`
	Descripcion string            `json:"descripcion"`
	Garantia    string            `json:"garantia"`
	Marca       string            `json:"marca"`
	ImgPortada  string            `json:"img_portada"`
	Categorias  []json.RawMessage `json:"categorias"`
	Caracts     []string          `json:"caracteristicas"`
	Precios     json.RawMessage   `json:"precios"`
	TotalExist  json.Number       `json:"total_existencia"`
	Existencia  json.RawMessage   `json:"existencia"`
}

type rawPrices struct {
	Normal    json.Number `json:"precio_1"`
	Especial  json.Number `json:"precio_especial"`
	Descuento json.Number `json:"precio_descuento"`
	Lista     json.Number `json:"precio_lista"`
}

// GetProduct fetches one product by supplier id, including per-branch
// inventory.
func (c *Client) GetProduct(ctx context.Context, supplierID string) (*Product, error) {
	var raw rawProduct
	endpoint := fmt.Sprintf("%s/productos/%s?inventarios=1", c.baseURL, url.PathEscape(supplierID))
	if err := c.getJSON(ctx, endpoint, &raw); err != nil {
		return nil, err
	}
	return normalizeProduct(&raw)
}

// SearchProducts queries the supplier catalog by free text and returns
// the matching products (without inventory detail).
func (c *Client) SearchProducts(ctx context.Context, query string) ([]Product, error) {
	var resp struct {
		Productos []rawProduct `json:"productos"`
	}
	endpoint := fmt.Sprintf("%s/productos?busqueda=%s", c.baseURL, url.QueryEscape(query))
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, err
	}

	out := make([]Product, 0, len(resp.Productos))
	for i := range resp.Productos {
		p, err := normalizeProduct(&resp.Productos[i])
		if err != nil {
			c.logger.Warn("skipping malformed supplier product", "error", err)
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

// ExchangeRate returns the supplier's published USD→MXN rate.
func (c *Client) ExchangeRate(ctx context.Context) (float64, error) {
	var resp struct {
		Normal json.Number `json:"normal"`
	}
	if err := c.getJSON(ctx, c.baseURL+"/tipocambio", &resp); err != nil {
		return 0, err
	}
	rate, err := resp.Normal.Float64()
	if err != nil {
		return 0, fmt.Errorf("parse exchange rate %q: %w", resp.Normal, err)
	}
	return rate, nil
}

// getJSON performs an authenticated GET, refreshing the token once on
// a 401.
func (c *Client) getJSON(ctx context.Context, endpoint string, v any) error {
	for attempt := 0; attempt < 2; attempt++ {
		token, err := c.accessToken(ctx, attempt > 0)
		if err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("supplier request failed: %w", err)
		}

		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			httpkit.DrainAndClose(resp.Body, 512)
			c.logger.Debug("supplier token rejected, refreshing")
			continue
		}

		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("supplier API error %d: %s",
				resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 512))
		}
		return json.NewDecoder(resp.Body).Decode(v)
	}
	return fmt.Errorf("supplier auth failed after token refresh")
}

// accessToken returns a cached token, fetching a new one when absent,
// expired, or force is set.
func (c *Client) accessToken(ctx context.Context, force bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !force && c.token != "" && time.Now().Before(c.expiresAt) {
		return c.token, nil
	}

	form := url.Values{
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"grant_type":    {"client_credentials"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint error %d: %s",
			resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 512))
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("decode token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned empty access_token")
	}

	c.token = tok.AccessToken
	// Renew a minute early to avoid using a token mid-expiry.
	c.expiresAt = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - time.Minute)
	c.logger.Debug("supplier token refreshed", "expires_in", tok.ExpiresIn)
	return c.token, nil
}

// normalizeProduct converts the wire format into a Product, tolerating
// the API's shape drift (prices as object or one-element list,
// categories as strings or objects, inventory as object or list).
func normalizeProduct(raw *rawProduct) (*Product, error) {
	if raw.ProductoID.String() == "" || raw.Titulo == "" {
		return nil, fmt.Errorf("product missing producto_id or titulo")
	}

	p := &Product{
		SupplierID:  raw.ProductoID.String(),
		Model:       raw.Modelo,
		Title:       raw.Titulo,
		Description: raw.Descripcion,
		Warranty:    raw.Garantia,
		Brand:       raw.Marca,
		MainImage:   raw.ImgPortada,
		Features:    raw.Caracts,
		BranchStock: make(map[string]int),
	}

	for _, rc := range raw.Categorias {
		var name string
		if err := json.Unmarshal(rc, &name); err == nil {
			p.Categories = append(p.Categories, name)
			continue
		}
		var obj struct {
			Nombre string `json:"nombre"`
		}
		if err := json.Unmarshal(rc, &obj); err == nil && obj.Nombre != "" {
			p.Categories = append(p.Categories, obj.Nombre)
		}
	}

	if len(raw.Precios) > 0 {
		var pr rawPrices
		if err := json.Unmarshal(raw.Precios, &pr); err != nil {
			var list []rawPrices
			if err := json.Unmarshal(raw.Precios, &list); err == nil && len(list) > 0 {
				pr = list[0]
			}
		}
		p.PriceNormal, _ = pr.Normal.Float64()
		p.PriceSpec, _ = pr.Especial.Float64()
		p.PriceDisc, _ = pr.Descuento.Float64()
		p.PriceList, _ = pr.Lista.Float64()
	}

	if raw.TotalExist.String() != "" {
		if n, err := raw.TotalExist.Int64(); err == nil {
			p.TotalStock = int(n)
		}
	}

	if len(raw.Existencia) > 0 {
		p.BranchStock = parseInventory(raw.Existencia)
	}

	return p, nil
}

// parseInventory handles both inventory shapes: an object keyed by
// branch slug under detalle.nuevo, or a list of {sucursal, cantidad}.
func parseInventory(raw json.RawMessage) map[string]int {
	out := make(map[string]int)

	var obj struct {
		Detalle struct {
			Nuevo map[string]json.Number `json:"nuevo"`
		} `json:"detalle"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && len(obj.Detalle.Nuevo) > 0 {
		for slug, qty := range obj.Detalle.Nuevo {
			if n, err := qty.Int64(); err == nil {
				out[slug] = int(n)
			}
		}
		return out
	}

	var list []struct {
		Sucursal string      `json:"sucursal"`
		Cantidad json.Number `json:"cantidad"`
	}
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, e := range list {
			n, err := e.Cantidad.Int64()
			if err != nil {
				continue
			}
			out[slugify(e.Sucursal)] = int(n)
		}
	}
	return out
}

// slugify lowercases a branch display name into the slug form used by
// the catalog ("San Luis Potosí" → "san_luis_potosi").
func slugify(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteRune('_')
		default:
			if folded, ok := accentFold[r]; ok {
				b.WriteRune(folded)
			}
		}
	}
	return b.String()
}

var accentFold = map[rune]rune{
	'á': 'a', 'é': 'e', 'í': 'i', 'ó': 'o', 'ú': 'u', 'ü': 'u', 'ñ': 'n',
}
