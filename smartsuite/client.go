/*
Copyright 2024 SuiteSync Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package smartsuite is a typed read client for the SmartSuite API, used
// for manual resyncs and schema discovery.
package smartsuite

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

const DefaultBaseURL = "https://app.smartsuite.com/api/v1"

// APIError is a non-2xx response from SmartSuite.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("smartsuite API error: %d %s", e.Status, http.StatusText(e.Status))
}

func (e *APIError) StatusCode() int {
	return e.Status
}

// Base is a SmartSuite solution.
type Base struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Table is an app (table) within a base.
type Table struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Record is a raw record payload; field structure is table-specific.
type Record map[string]interface{}

// ID returns the record id, probing the same well-known locations the
// webhook ingress uses.
func (r Record) ID() string {
	for _, key := range []string{"record_id", "id"} {
		if id, ok := r[key].(string); ok && id != "" {
			return id
		}
	}
	return ""
}

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient() *Client {
	return &Client{baseURL: DefaultBaseURL, http: &http.Client{}}
}

func NewClientWithBaseURL(baseURL string) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: &http.Client{}}
}

func (c *Client) request(ctx context.Context, method, endpoint, apiKey string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Token "+apiKey)

	logrus.WithFields(logrus.Fields{
		"service":  "smartsuite",
		"endpoint": endpoint,
	}).Debug("smartsuite API request")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		logrus.WithFields(logrus.Fields{
			"service":  "smartsuite",
			"endpoint": endpoint,
			"status":   resp.StatusCode,
		}).Error("smartsuite API error")
		return &APIError{Status: resp.StatusCode, Body: string(raw)}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GetBases lists the solutions the key can reach.
func (c *Client) GetBases(ctx context.Context, apiKey string) ([]Base, error) {
	var bases []Base
	if err := c.request(ctx, http.MethodGet, "/bases", apiKey, nil, &bases); err != nil {
		return nil, err
	}
	return bases, nil
}

// GetTables lists the tables (apps) in a base.
func (c *Client) GetTables(ctx context.Context, apiKey, baseID string) ([]Table, error) {
	var tables []Table
	endpoint := fmt.Sprintf("/bases/%s/apps", baseID)
	if err := c.request(ctx, http.MethodGet, endpoint, apiKey, nil, &tables); err != nil {
		return nil, err
	}
	return tables, nil
}

// GetRecords pages through a table's records.
func (c *Client) GetRecords(ctx context.Context, apiKey, baseID, tableID string, limit, offset int) ([]Record, error) {
	endpoint := fmt.Sprintf("/bases/%s/apps/%s/records", baseID, tableID)
	sep := "?"
	if limit > 0 {
		endpoint += fmt.Sprintf("%slimit=%d", sep, limit)
		sep = "&"
	}
	if offset > 0 {
		endpoint += fmt.Sprintf("%soffset=%d", sep, offset)
	}

	var records []Record
	if err := c.request(ctx, http.MethodGet, endpoint, apiKey, nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// GetRecord fetches one record by id, used by manual resync.
func (c *Client) GetRecord(ctx context.Context, apiKey, baseID, tableID, recordID string) (Record, error) {
	var record Record
	endpoint := fmt.Sprintf("/bases/%s/apps/%s/records/%s", baseID, tableID, recordID)
	if err := c.request(ctx, http.MethodGet, endpoint, apiKey, nil, &record); err != nil {
		return nil, err
	}
	return record, nil
}
