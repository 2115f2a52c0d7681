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

// Package webflow is a thin typed client for the Webflow CMS v2 API,
// covering the item and collection operations the sync engine needs.
package webflow

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

const DefaultBaseURL = "https://api.webflow.com/v2"

// APIError is a non-2xx response. It keeps the raw body because slug
// collisions can only be recognized from the error text.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("webflow API error: %d %s", e.Status, http.StatusText(e.Status))
}

// StatusCode feeds retry classification.
func (e *APIError) StatusCode() int {
	return e.Status
}

// IsSlugCollision reports whether an error is a target-side slug uniqueness
// conflict: a 409, or any other 4xx whose body mentions the slug.
func IsSlugCollision(err error) bool {
	apiErr, ok := err.(*APIError)
	if !ok {
		return false
	}
	if apiErr.Status == http.StatusConflict {
		return true
	}
	return apiErr.Status >= 400 && apiErr.Status < 500 &&
		strings.Contains(strings.ToLower(apiErr.Body), "slug")
}

// Item is a CMS item as returned by the API.
type Item struct {
	ID          string                 `json:"id"`
	CmsLocaleID string                 `json:"cmsLocaleId,omitempty"`
	LastUpdated string                 `json:"lastUpdated,omitempty"`
	CreatedOn   string                 `json:"createdOn,omitempty"`
	IsArchived  bool                   `json:"isArchived"`
	IsDraft     bool                   `json:"isDraft"`
	FieldData   map[string]interface{} `json:"fieldData"`
}

// Field describes one collection field in the schema.
type Field struct {
	ID          string `json:"id"`
	Slug        string `json:"slug"`
	DisplayName string `json:"displayName"`
	Type        string `json:"type"`
	IsRequired  bool   `json:"isRequired"`
}

// CollectionSchema is the shape of a collection, used by mapping editors
// and required-field discovery.
type CollectionSchema struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"displayName"`
	Slug        string  `json:"slug"`
	Fields      []Field `json:"fields"`
}

// Site is a Webflow site summary.
type Site struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	ShortName   string `json:"shortName"`
}

// Collection is a collection summary within a site.
type Collection struct {
	ID           string `json:"id"`
	DisplayName  string `json:"displayName"`
	Slug         string `json:"slug"`
	SingularName string `json:"singularName"`
}

// Client calls the Webflow API. The zero value is not usable; use NewClient.
// Timeouts are the caller's responsibility via context, so the executor's
// per-call deadline applies uniformly.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client against the public API.
func NewClient() *Client {
	return &Client{baseURL: DefaultBaseURL, http: &http.Client{}}
}

// NewClientWithBaseURL is for tests and proxies.
func NewClientWithBaseURL(baseURL string) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: &http.Client{}}
}

func (c *Client) request(ctx context.Context, method, endpoint, token string, payload, out interface{}) error {
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
	req.Header.Set("Authorization", "Bearer "+token)

	logrus.WithFields(logrus.Fields{
		"service":  "webflow",
		"endpoint": endpoint,
		"method":   method,
	}).Debug("webflow API request")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		logrus.WithFields(logrus.Fields{
			"service":  "webflow",
			"endpoint": endpoint,
			"status":   resp.StatusCode,
		}).Error("webflow API error")
		return &APIError{Status: resp.StatusCode, Body: string(raw)}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GetSites lists the sites the token can reach.
func (c *Client) GetSites(ctx context.Context, token string) ([]Site, error) {
	var response struct {
		Sites []Site `json:"sites"`
	}
	if err := c.request(ctx, http.MethodGet, "/sites", token, nil, &response); err != nil {
		return nil, err
	}
	return response.Sites, nil
}

// GetCollections lists the collections of a site.
func (c *Client) GetCollections(ctx context.Context, token, siteID string) ([]Collection, error) {
	var response struct {
		Collections []Collection `json:"collections"`
	}
	endpoint := fmt.Sprintf("/sites/%s/collections", siteID)
	if err := c.request(ctx, http.MethodGet, endpoint, token, nil, &response); err != nil {
		return nil, err
	}
	return response.Collections, nil
}

// GetCollectionSchema fetches a collection's field schema.
func (c *Client) GetCollectionSchema(ctx context.Context, token, collectionID string) (*CollectionSchema, error) {
	var schema CollectionSchema
	endpoint := fmt.Sprintf("/collections/%s", collectionID)
	if err := c.request(ctx, http.MethodGet, endpoint, token, nil, &schema); err != nil {
		return nil, err
	}
	return &schema, nil
}

// CreateItem creates a live item in a collection.
func (c *Client) CreateItem(ctx context.Context, token, collectionID string, fieldData map[string]interface{}) (*Item, error) {
	var item Item
	endpoint := fmt.Sprintf("/collections/%s/items/live", collectionID)
	payload := map[string]interface{}{"fieldData": fieldData}
	if err := c.request(ctx, http.MethodPost, endpoint, token, payload, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// UpdateItem patches an existing live item.
func (c *Client) UpdateItem(ctx context.Context, token, collectionID, itemID string, fieldData map[string]interface{}) (*Item, error) {
	var item Item
	endpoint := fmt.Sprintf("/collections/%s/items/%s/live", collectionID, itemID)
	payload := map[string]interface{}{"fieldData": fieldData}
	if err := c.request(ctx, http.MethodPatch, endpoint, token, payload, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// DeleteItem removes an item from a collection.
func (c *Client) DeleteItem(ctx context.Context, token, collectionID, itemID string) error {
	endpoint := fmt.Sprintf("/collections/%s/items/%s", collectionID, itemID)
	return c.request(ctx, http.MethodDelete, endpoint, token, nil, nil)
}
