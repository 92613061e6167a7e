package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/FeatureScope/internal/domain/projection"
	apperrors "github.com/turtacn/FeatureScope/pkg/errors"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL+"/", time.Second)
	require.NoError(t, err)
	return c
}

func TestNewClient_RejectsBadURL(t *testing.T) {
	for _, u := range []string{"", "localhost:8000", "ftp://x", "http://"} {
		_, err := NewClient(u, time.Second)
		assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidParam), u)
	}
}

func TestFetchScatter(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PathScatter, r.URL.Path)
		assert.Equal(t, "sae-1", r.URL.Query().Get("sae_id"))
		assert.Equal(t, "capital cities", r.URL.Query().Get("query"))
		assert.Equal(t, "", r.URL.Query().Get("llm"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		_, _ = io.WriteString(w, `{"data":{
			"coordinates":[[0,0],[1,1]],
			"indices":[7,"8"],
			"descriptions":["a","b"],
			"hierarchical_clusters":{"10":{"labels":[0,1],"colors":["#111","#222"],"centers":[[0,0],[1,1]],"topics":{},"topic_scores":{}}},
			"query":{"text":"capital cities","coordinates":[0.5,0.5],"nearest_features":[{"feature_id":7,"similarity":0.9,"description":"a","coordinates":[0,0]}]}
		}}`)
	})

	res, err := c.FetchScatter(context.Background(), ScatterQuery{SAEID: "sae-1", Query: "capital cities"})
	require.NoError(t, err)
	assert.Equal(t, []projection.FeatureID{"7", "8"}, res.Indices)
	require.NotNil(t, res.Query)
	assert.Equal(t, projection.FeatureID("7"), res.Query.NearestFeatures[0].FeatureID)

	store, err := projection.Build(res)
	require.NoError(t, err)
	assert.Equal(t, 3, store.Len())
}

func TestFetchFeatureDetail(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PathFeatureDetail, r.URL.Path)
		assert.Equal(t, "42", r.URL.Query().Get("feature_id"))
		_, _ = io.WriteString(w, `{"data":{"activation_stats":{"max":3},"raw_stats":{"similar_features":{"feature_ids":[42,"43",44],"values":[1,0.8]}}}}`)
	})

	d, err := c.FetchFeatureDetail(context.Background(), DetailQuery{FeatureID: "42", SAEID: "s"})
	require.NoError(t, err)
	assert.Equal(t, projection.FeatureID("42"), d.FeatureID)
	assert.Equal(t, []projection.FeatureID{"42", "43", "44"}, d.SimilarIDs())
	assert.Contains(t, string(d.Raw), "activation_stats")

	nb := d.Neighbours(func(id projection.FeatureID) string { return "Feature " + id.String() })
	require.Len(t, nb, 3)
	assert.Equal(t, 0.8, nb[1].Similarity)
	assert.Equal(t, 0.0, nb[2].Similarity)
	assert.Equal(t, "Feature 44", nb[2].Description)
}

func TestFetchFeatureDetail_RequiresID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { t.Fatal("unexpected request") })
	_, err := c.FetchFeatureDetail(context.Background(), DetailQuery{})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidParam))
}

func TestAnalyzeTokens_SendsOneBasedIndices(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		toks := body["selected_prompt_tokens"].([]interface{})
		require.Len(t, toks, 2)
		assert.Equal(t, float64(1), toks[0].(map[string]interface{})["token_index"])
		assert.Equal(t, float64(4), toks[1].(map[string]interface{})["token_index"])

		_, _ = io.WriteString(w, `{"data":{
			"related_features_union":["1","2","3"],
			"related_features_intersection":["1"],
			"prompt_token_features":[
				{"prompt":"p","token_index":1,"features":[{"feature_id":"1","activation":2.5},{"feature_id":"2","activation":1}]},
				{"prompt":"p","token_index":4,"features":[{"feature_id":1,"activation":0.5}]}
			]}}`)
	})

	a, err := c.AnalyzeTokens(context.Background(), TokenAnalysisRequest{
		FeatureID: "9", SAEID: "s",
		SelectedTokens: []SelectedToken{{Prompt: "p", TokenIndex: 0}, {Prompt: "p", TokenIndex: 3}},
	})
	require.NoError(t, err)

	rel := a.Related()
	assert.Equal(t, []projection.RelatedToken{
		{Prompt: "p", TokenIndex: 1, Activation: 2.5},
		{Prompt: "p", TokenIndex: 4, Activation: 0.5},
	}, rel["1"])
	assert.Len(t, rel["2"], 1)
	assert.Empty(t, rel["3"])
	_, ok := rel["4"]
	assert.False(t, ok)
}

func TestAnalyzeTokens_RequiresTokens(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { t.Fatal("unexpected request") })
	_, err := c.AnalyzeTokens(context.Background(), TokenAnalysisRequest{FeatureID: "1"})
	assert.Error(t, err)
}

func TestPromptTokenList_ObjectLayout(t *testing.T) {
	var a TokenAnalysis
	require.NoError(t, json.Unmarshal([]byte(`{
		"related_features_union":["5"],
		"prompt_token_features":{"10":{"prompt":"b","token_index":2,"features":[{"feature_id":"5","activation":1}]},
		                          "2":{"prompt":"a","token_index":1,"features":[{"feature_id":"5","activation":3}]}}
	}`), &a))
	require.Len(t, a.PromptTokenFeatures, 2)
	assert.Equal(t, "a", a.PromptTokenFeatures[0].Prompt)
	assert.Equal(t, "a", a.Related()["5"][0].Prompt)
}

func TestDo_StatusError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "sae not loaded", http.StatusServiceUnavailable)
	})
	_, err := c.FetchScatter(context.Background(), ScatterQuery{SAEID: "x"})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeUpstreamStatus))
	assert.Contains(t, err.Error(), "status=503")
	assert.Contains(t, err.Error(), "sae not loaded")
}

func TestDo_DecodeErrors(t *testing.T) {
	cases := map[string]string{
		"not json": `<html>`,
		"no data":  `{"error":"x"}`,
		"null":     `{"data":null}`,
		"bad type": `{"data":{"coordinates":"nope"}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { _, _ = io.WriteString(w, body) })
			_, err := c.FetchScatter(context.Background(), ScatterQuery{SAEID: "x"})
			assert.True(t, apperrors.IsCode(err, apperrors.CodeUpstreamDecode), err)
		})
	}
}

func TestDo_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewClient(url, time.Second)
	require.NoError(t, err)
	_, err = c.FetchScatter(context.Background(), ScatterQuery{SAEID: "x"})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeUpstreamUnavailable))
}

func TestDo_CancelledContextIsReturnedUnwrapped(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := c.FetchScatter(ctx, ScatterQuery{SAEID: "x"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, apperrors.CodeUnknown, apperrors.GetCode(err))
}
