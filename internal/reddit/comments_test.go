package reddit

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reddit-fleet/scraper-control/internal/models"
)

// threeLevelTree nests c0 -> c1 -> c2, three levels deep (depths 0, 1, 2).
const threeLevelTree = `[
	{"data":{"children":[]}},
	{"data":{"children":[
		{"kind":"t1","data":{
			"id":"c0","name":"t1_c0","parent_id":"t3_post1","link_id":"t3_post1","body":"root",
			"replies":{"data":{"children":[
				{"kind":"t1","data":{
					"id":"c1","name":"t1_c1","parent_id":"t1_c0","link_id":"t3_post1","body":"reply1",
					"replies":{"data":{"children":[
						{"kind":"t1","data":{
							"id":"c2","name":"t1_c2","parent_id":"t1_c1","link_id":"t3_post1","body":"reply2",
							"replies":""
						}}
					]}}
				}}
			]}}
		}}
	]}}
]`

func fetchCommentTreeFrom(t *testing.T, body string, maxDepth, moreLimit int) []int {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "access_token") {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "tok", "expires_in": 3600})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	})
	c, srv := newTestClient(t, handler)
	defer srv.Close()

	comments, err := c.FetchCommentTree(context.Background(), "post1", maxDepth, moreLimit)
	require.NoError(t, err)
	depths := make([]int, len(comments))
	for i, cm := range comments {
		depths[i] = cm.Depth
	}
	return depths
}

func TestFetchCommentTree_StopsWalkingPastMaxDepth(t *testing.T) {
	depths := fetchCommentTreeFrom(t, threeLevelTree, 1, 0)
	assert.Equal(t, []int{0, 1}, depths, "walk halts once depth exceeds maxDepth")
}

func TestFetchCommentTree_WalksFullDepthWhenUnderLimit(t *testing.T) {
	depths := fetchCommentTreeFrom(t, threeLevelTree, 10, 0)
	assert.Equal(t, []int{0, 1, 2}, depths)
}

func TestFetchCommentTree_ParentTypePostForTopLevelComment(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "access_token") {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "tok", "expires_in": 3600})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"data":{"children":[]}},
			{"data":{"children":[
				{"kind":"t1","data":{"id":"c0","name":"t1_c0","parent_id":"t3_post1","link_id":"t3_post1","body":"root","replies":""}}
			]}}
		]`))
	})
	c, srv := newTestClient(t, handler)
	defer srv.Close()

	comments, err := c.FetchCommentTree(context.Background(), "post1", 5, 0)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, models.ParentPost, comments[0].ParentType)
	assert.Equal(t, "", comments[0].ParentID)
}

func TestFetchCommentTree_EmptyTopLevelReturnsNilWithoutError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "access_token") {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "tok", "expires_in": 3600})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"data":{"children":[]}},{"data":{"children":[]}}]`))
	})
	c, srv := newTestClient(t, handler)
	defer srv.Close()

	comments, err := c.FetchCommentTree(context.Background(), "post1", 5, 0)
	require.NoError(t, err)
	assert.Empty(t, comments)
}

func TestFetchCommentTree_MoreCommentsLimitZeroIssuesNoExpansionRequest(t *testing.T) {
	expansionCalls := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "access_token") {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "tok", "expires_in": 3600})
			return
		}
		if strings.Contains(r.URL.Path, "morechildren") {
			expansionCalls++
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"json":{"data":{"things":[]}}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"data":{"children":[]}},
			{"data":{"children":[
				{"kind":"more","data":{"id":"m1","name":"t1_m1","count":5,"children":["x1","x2"]}}
			]}}
		]`))
	})
	c, srv := newTestClient(t, handler)
	defer srv.Close()

	comments, err := c.FetchCommentTree(context.Background(), "post1", 5, 0)
	require.NoError(t, err)
	assert.Empty(t, comments)
	assert.Equal(t, 0, expansionCalls, "more_comments_limit=0 must not issue any /api/morechildren request")
}

func TestFetchCommentTree_MoreCommentsLimitExpandsViaAPI(t *testing.T) {
	expansionCalls := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "access_token") {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "tok", "expires_in": 3600})
			return
		}
		if strings.Contains(r.URL.Path, "morechildren") {
			expansionCalls++
			assert.Contains(t, r.URL.Query().Get("children"), "x1")
			assert.Equal(t, "t3_post1", r.URL.Query().Get("link_id"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"json":{"data":{"things":[
				{"kind":"t1","data":{"id":"x1","name":"t1_x1","parent_id":"t1_m1","link_id":"t3_post1","body":"expanded","replies":""}}
			]}}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"data":{"children":[]}},
			{"data":{"children":[
				{"kind":"more","data":{"id":"m1","name":"t1_m1","count":2,"children":["x1"]}}
			]}}
		]`))
	})
	c, srv := newTestClient(t, handler)
	defer srv.Close()

	comments, err := c.FetchCommentTree(context.Background(), "post1", 5, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, expansionCalls)
	require.Len(t, comments, 1)
	assert.Equal(t, "t1_x1", comments[0].CommentID)
}

func TestFetchCommentTree_MoreCommentsLimitCapsExpansionCount(t *testing.T) {
	expansionCalls := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "access_token") {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "tok", "expires_in": 3600})
			return
		}
		if strings.Contains(r.URL.Path, "morechildren") {
			expansionCalls++
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"json":{"data":{"things":[]}}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"data":{"children":[]}},
			{"data":{"children":[
				{"kind":"more","data":{"id":"m1","name":"t1_m1","count":2,"children":["x1"]}},
				{"kind":"more","data":{"id":"m2","name":"t1_m2","count":2,"children":["x2"]}}
			]}}
		]`))
	})
	c, srv := newTestClient(t, handler)
	defer srv.Close()

	_, err := c.FetchCommentTree(context.Background(), "post1", 5, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, expansionCalls, "more_comments_limit=1 must stop after the first stub")
}
