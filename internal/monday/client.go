package monday

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dio26699-sudo/ocrmonday/internal/extract"
	"github.com/dio26699-sudo/ocrmonday/internal/pipeline"
)

const defaultAPIURL = "https://api.monday.com/v2"

// maxDownloadBytes caps asset downloads; invoice scans beyond this are
// misconfigured uploads, not documents.
const maxDownloadBytes = 25 * 1024 * 1024

// ColumnMap names the board columns that receive each extracted field. Empty
// entries are skipped on update.
type ColumnMap struct {
	Total         string
	InvoiceNumber string
	Supplier      string
	CustomerTaxID string
	InvoiceDate   string
	Currency      string
	Method        string
}

// Client talks to the monday.com GraphQL API. It implements pipeline.Source
// and pipeline.Sink.
type Client struct {
	apiURL  string
	token   string
	columns ColumnMap
	client  *http.Client
}

// NewClient creates a monday.com API client. An empty apiURL selects the
// public endpoint.
func NewClient(apiURL, token string, columns ColumnMap, timeout time.Duration) *Client {
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		apiURL:  apiURL,
		token:   token,
		columns: columns,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// query posts one GraphQL document and decodes the data envelope into out.
func (c *Client) query(query string, variables map[string]any, out any) error {
	body, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("marshaling query: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling monday api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("monday api returned status %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		return fmt.Errorf("monday api error: %s", envelope.Errors[0].Message)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("decoding data: %w", err)
		}
	}
	return nil
}

// ItemFiles returns the documents attached to a board item.
func (c *Client) ItemFiles(itemID string) ([]pipeline.File, error) {
	const q = `query ($ids: [ID!]) { items (ids: $ids) { assets { name public_url } } }`

	var data struct {
		Items []struct {
			Assets []struct {
				Name      string `json:"name"`
				PublicURL string `json:"public_url"`
			} `json:"assets"`
		} `json:"items"`
	}
	if err := c.query(q, map[string]any{"ids": []string{itemID}}, &data); err != nil {
		return nil, fmt.Errorf("listing assets for item %s: %w", itemID, err)
	}
	if len(data.Items) == 0 {
		return nil, nil
	}

	files := make([]pipeline.File, 0, len(data.Items[0].Assets))
	for _, asset := range data.Items[0].Assets {
		files = append(files, pipeline.File{Name: asset.Name, URL: asset.PublicURL})
	}
	return files, nil
}

// Download fetches one asset by its public URL.
func (c *Client) Download(url string) ([]byte, error) {
	resp, err := c.client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("downloading asset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("downloading asset: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading asset: %w", err)
	}
	if len(data) > maxDownloadBytes {
		return nil, fmt.Errorf("asset too large (>%d bytes)", maxDownloadBytes)
	}
	return data, nil
}

// ApplyFields writes the extracted fields to the item's mapped columns in a
// single mutation. Resending the same values is harmless, which is what makes
// duplicate trigger deliveries tolerable upstream.
func (c *Client) ApplyFields(itemID, boardID string, fields extract.Fields) error {
	values, err := json.Marshal(c.columnValues(fields))
	if err != nil {
		return fmt.Errorf("marshaling column values: %w", err)
	}

	const m = `mutation ($board: ID!, $item: ID!, $values: JSON!) { change_multiple_column_values (board_id: $board, item_id: $item, column_values: $values) { id } }`

	var data struct {
		Change struct {
			ID string `json:"id"`
		} `json:"change_multiple_column_values"`
	}
	err = c.query(m, map[string]any{
		"board":  boardID,
		"item":   itemID,
		"values": string(values),
	}, &data)
	if err != nil {
		return fmt.Errorf("updating item %s: %w", itemID, err)
	}
	return nil
}

func (c *Client) columnValues(fields extract.Fields) map[string]any {
	values := make(map[string]any)
	set := func(column, value string) {
		if column != "" && value != "" {
			values[column] = value
		}
	}
	if fields.TotalValue > 0 {
		set(c.columns.Total, fmt.Sprintf("%.2f", fields.TotalValue))
	}
	set(c.columns.InvoiceNumber, fields.InvoiceNumber)
	set(c.columns.Supplier, fields.SupplierName)
	set(c.columns.CustomerTaxID, fields.CustomerTaxID)
	set(c.columns.Currency, fields.Currency)
	set(c.columns.Method, string(fields.Method))
	if c.columns.InvoiceDate != "" && fields.InvoiceDate != "" {
		values[c.columns.InvoiceDate] = map[string]string{"date": fields.InvoiceDate}
	}
	return values
}
