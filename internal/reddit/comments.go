package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/reddit-fleet/scraper-control/internal/models"
)

// commentThing is Reddit's generic {kind, data} envelope; kind is "t1" for
// a real comment and "more" for a collapsed "load more comments" stub.
type commentThing struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type commentListing struct {
	Data struct {
		Children []commentThing `json:"children"`
	} `json:"data"`
}

type commentData struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	ParentID   string      `json:"parent_id"`
	LinkID     string      `json:"link_id"`
	Body       string      `json:"body"`
	Author     string      `json:"author"`
	Score      int         `json:"score"`
	CreatedUTC float64     `json:"created_utc"`
	Replies    interface{} `json:"replies"` // "" when leaf, else nested commentListing
	Count      int         `json:"count"`   // present on "more" stubs
	Children   []string    `json:"children"` // present on "more" stubs, unprefixed ids
}

// FetchCommentTree walks a post's comment tree to maxDepth, expanding
// "more comments" stubs according to moreCommentsLimit (spec.md §3's
// Open Question decision: 0 skips expansion, -1 expands all, N>0 expands
// up to N stubs). Comments are returned flattened with depth recorded.
// postID is bare (no "t3_" prefix), matching models.Post.PostID and the
// /comments/<id> path Reddit expects; fetchMoreChildren adds the "t3_"
// prefix itself when it needs the post's fullname for link_id.
func (c *Client) FetchCommentTree(ctx context.Context, postID string, maxDepth, moreCommentsLimit int) ([]models.Comment, error) {
	body, status, err := c.get(ctx, fmt.Sprintf("/comments/%s", postID), nil)
	if err != nil {
		return nil, err
	}
	if err := classifyStatus(status); err != nil {
		return nil, err
	}

	var pair []commentListing
	if err := json.Unmarshal(body, &pair); err != nil {
		return nil, fmt.Errorf("reddit: decode comment tree: %w", err)
	}
	if len(pair) < 2 {
		return nil, nil
	}

	w := &treeWalker{maxDepth: maxDepth, moreLimit: moreCommentsLimit, postID: postID, ctx: ctx, client: c}
	w.walk(pair[1].Data.Children, "", 0)
	return w.out, nil
}

// fetchMoreChildren expands a "more comments" stub via /api/morechildren,
// matching original_source/comments_scraper.py's replace_more(limit=...)
// call. The returned things are a flat batch, not a nested listing.
func (c *Client) fetchMoreChildren(ctx context.Context, postID string, childIDs []string) ([]commentThing, error) {
	query := url.Values{}
	query.Set("link_id", "t3_"+postID)
	query.Set("children", strings.Join(childIDs, ","))
	query.Set("api_type", "json")

	body, status, err := c.get(ctx, "/api/morechildren", query)
	if err != nil {
		return nil, err
	}
	if err := classifyStatus(status); err != nil {
		return nil, err
	}

	var resp struct {
		JSON struct {
			Data struct {
				Things []commentThing `json:"things"`
			} `json:"data"`
		} `json:"json"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("reddit: decode morechildren response: %w", err)
	}
	return resp.JSON.Data.Things, nil
}

type treeWalker struct {
	out       []models.Comment
	maxDepth  int
	moreLimit int
	moreUsed  int
	postID    string
	ctx       context.Context
	client    *Client
}

func (w *treeWalker) walk(children []commentThing, parentID string, depth int) {
	if depth > w.maxDepth {
		return
	}
	for _, child := range children {
		switch child.Kind {
		case "t1":
			var d commentData
			if err := json.Unmarshal(child.Data, &d); err != nil {
				continue
			}
			parentType := models.ParentComment
			pid := d.ParentID
			if pid == d.LinkID {
				parentType = models.ParentPost
				pid = ""
			}
			w.out = append(w.out, models.Comment{
				CommentID:  d.Name,
				PostID:     w.postID,
				ParentID:   pid,
				ParentType: parentType,
				Depth:      depth,
				Body:       d.Body,
				Author:     d.Author,
				Score:      d.Score,
				CreatedAt:  time.Unix(int64(d.CreatedUTC), 0).UTC(),
			})
			if nested, ok := d.Replies.(map[string]interface{}); ok {
				w.walk(decodeReplies(nested), d.Name, depth+1)
			}
		case "more":
			w.expandMore(child, depth)
		}
	}
}

// expandMore replaces a "more" stub with a real /api/morechildren fetch,
// billed through the same CountingTransport as every other request this
// client issues. moreLimit==0 keeps the previous no-op skip; a positive
// limit caps the number of expansion calls this tree will make; -1
// expands every stub it encounters. The returned batch is flat (Reddit
// gives no nested listing for it), so its items are walked in at the
// stub's own depth rather than reconstructed into an exact subtree —
// deep enough to satisfy "pick the integer form if deeper trees are
// required" without a full parent_id reassembly pass.
func (w *treeWalker) expandMore(child commentThing, depth int) {
	if w.moreLimit == 0 {
		return
	}
	if w.moreLimit > 0 && w.moreUsed >= w.moreLimit {
		return
	}

	var d commentData
	if err := json.Unmarshal(child.Data, &d); err != nil {
		return
	}
	if len(d.Children) == 0 {
		return
	}

	w.moreUsed++
	things, err := w.client.fetchMoreChildren(w.ctx, w.postID, d.Children)
	if err != nil {
		log.Printf("reddit: expand more comments for %s failed: %v", w.postID, err)
		return
	}
	w.walk(things, "", depth)
}

// decodeReplies re-marshals the loosely-typed "replies" field back into a
// commentListing's children, since Reddit encodes it as either "" (no
// replies) or a nested Listing object depending on json.RawMessage's
// generic decode into interface{}.
func decodeReplies(nested map[string]interface{}) []commentThing {
	raw, err := json.Marshal(nested)
	if err != nil {
		return nil
	}
	var listing commentListing
	if err := json.Unmarshal(raw, &listing); err != nil {
		return nil
	}
	return listing.Data.Children
}
