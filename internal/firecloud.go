package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/databiosphere/tablesmasher"
)

// FireCloudStore is a tablesmasher.TableStore over the FireCloud workspace
// entity API. Server-side (5xx) and network failures map to transient
// store errors so the retry policy picks them up; 404 on a table fetch
// maps to table-not-found.
type FireCloudStore struct {
	base      string
	namespace string
	workspace string
	token     string
	client    *http.Client
}

// NewFireCloudStore builds a store for one workspace. A nil client gets a
// default with the given timeout.
func NewFireCloudStore(apiBase, namespace, workspace, token string, timeout time.Duration, client *http.Client) *FireCloudStore {
	if client == nil {
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &FireCloudStore{
		base:      strings.TrimRight(apiBase, "/"),
		namespace: namespace,
		workspace: workspace,
		token:     token,
		client:    client,
	}
}

func (s *FireCloudStore) workspaceURL(parts ...string) string {
	segments := append([]string{s.base, "api", "workspaces", url.PathEscape(s.namespace), url.PathEscape(s.workspace)}, parts...)
	return strings.Join(segments, "/")
}

func (s *FireCloudStore) do(ctx context.Context, method, rawURL, contentType string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, tablesmasher.NewInternalError("building store request failed", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, tablesmasher.NewTransientStoreError("workspace API request failed", err).
			WithDetail("method", method).
			WithDetail("url", rawURL)
	}
	return resp, nil
}

func readBody(resp *http.Response) string {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ""
	}
	return string(body)
}

// statusError maps a non-success status code to the engine's error
// taxonomy, carrying the response body as message.
func statusError(resp *http.Response, table string) error {
	body := readBody(resp)
	msg := fmt.Sprintf("workspace API returned status %d: %s", resp.StatusCode, body)
	switch {
	case resp.StatusCode == http.StatusNotFound && table != "":
		return tablesmasher.NewTableNotFoundError(table).WithDetail("body", body)
	case resp.StatusCode >= 500:
		return tablesmasher.NewTransientStoreError(msg, nil).WithDetail("status", resp.StatusCode)
	default:
		return tablesmasher.NewInternalError(msg, nil).WithDetail("status", resp.StatusCode)
	}
}

// ListTables lists every entity type with its row count and attribute names.
func (s *FireCloudStore) ListTables(ctx context.Context) (map[string]tablesmasher.TableInfo, error) {
	resp, err := s.do(ctx, http.MethodGet, s.workspaceURL("entities"), "", nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp, "")
	}
	defer resp.Body.Close()

	var info map[string]tablesmasher.TableInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, tablesmasher.NewInternalError("decoding entity type listing failed", err)
	}
	return info, nil
}

// FetchTableTSV downloads one entity table in the flexible TSV format.
func (s *FireCloudStore) FetchTableTSV(ctx context.Context, name string, columns []string) (string, error) {
	rawURL := s.workspaceURL("entities", url.PathEscape(name), "tsv")
	query := url.Values{"model": []string{"flexible"}}
	if len(columns) > 0 {
		query.Set("attributeNames", strings.Join(columns, ","))
	}
	rawURL += "?" + query.Encode()

	resp, err := s.do(ctx, http.MethodGet, rawURL, "", nil)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp, name)
	}
	return readBody(resp), nil
}

// UploadTSV imports one TSV chunk through the flexible entity importer.
func (s *FireCloudStore) UploadTSV(ctx context.Context, tsv string) error {
	form := url.Values{"entities": []string{tsv}}
	resp, err := s.do(ctx, http.MethodPost, s.workspaceURL("flexibleImportEntities"),
		"application/x-www-form-urlencoded", []byte(form.Encode()))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return statusError(resp, "")
	}
	readBody(resp)
	return nil
}

// DeleteRows deletes the named entities from a table. Success is status 204.
func (s *FireCloudStore) DeleteRows(ctx context.Context, table string, ids []string) error {
	type entityRef struct {
		EntityType string `json:"entityType"`
		EntityName string `json:"entityName"`
	}
	refs := make([]entityRef, len(ids))
	for i, id := range ids {
		refs[i] = entityRef{EntityType: table, EntityName: id}
	}
	body, err := json.Marshal(refs)
	if err != nil {
		return tablesmasher.NewInternalError("encoding delete request failed", err)
	}

	resp, err := s.do(ctx, http.MethodPost, s.workspaceURL("entities", "delete"), "application/json", body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusNoContent {
		return statusError(resp, table)
	}
	readBody(resp)
	zap.S().Debugw("deleted entity rows", "table", table, "count", len(ids))
	return nil
}
