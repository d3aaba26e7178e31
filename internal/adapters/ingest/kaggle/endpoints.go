package kaggle

import (
	"context"
	"encoding/json"
	"iter"
	"strconv"
	"strings"

	"kaggleharvest/internal/core/catalog"
	"kaggleharvest/internal/platform/bind"
	perr "kaggleharvest/internal/platform/errors"
)

// ListCompetitions lazily lists every competition from page 1
func (c *Client) ListCompetitions(ctx context.Context) iter.Seq2[catalog.Competition, error] {
	return c.ListCompetitionsFrom(ctx, NewCursor(1))
}

// ListCompetitionsFrom lists competitions starting at cur.Next() and advances cur
func (c *Client) ListCompetitionsFrom(ctx context.Context, cur *Cursor) iter.Seq2[catalog.Competition, error] {
	return paginate(ctx, cur, func(ctx context.Context, page int) ([]catalog.Competition, error) {
		recs, err := c.listPage(ctx, "/competitions/list", map[string]string{
			"page": strconv.Itoa(page),
		})
		if err != nil {
			return nil, err
		}
		out := make([]catalog.Competition, 0, len(recs))
		for _, r := range recs {
			comp, err := toCompetition(r)
			if err != nil {
				return nil, err
			}
			out = append(out, comp)
		}
		return out, nil
	})
}

// ListKernels lazily lists the kernels of one competition from page 1
func (c *Client) ListKernels(ctx context.Context, competitionID string) iter.Seq2[catalog.Kernel, error] {
	return c.ListKernelsFrom(ctx, competitionID, NewCursor(1))
}

// ListKernelsFrom lists kernels of a competition starting at cur.Next()
func (c *Client) ListKernelsFrom(ctx context.Context, competitionID string, cur *Cursor) iter.Seq2[catalog.Kernel, error] {
	return paginate(ctx, cur, func(ctx context.Context, page int) ([]catalog.Kernel, error) {
		recs, err := c.listPage(ctx, "/kernels/list", map[string]string{
			"page":        strconv.Itoa(page),
			"pageSize":    strconv.Itoa(c.opts.PageSize),
			"competition": competitionID,
		})
		if err != nil {
			return nil, perr.WithField(err, competitionID)
		}
		out := make([]catalog.Kernel, 0, len(recs))
		for _, r := range recs {
			k, err := toKernel(r, competitionID)
			if err != nil {
				return nil, err
			}
			out = append(out, k)
		}
		return out, nil
	})
}

// FetchNotebookFiles pulls a kernel's source and metadata. Files holds the
// source under its original extension plus a metadata sidecar
func (c *Client) FetchNotebookFiles(ctx context.Context, kernelID string) (Notebook, error) {
	owner, slug, ok := strings.Cut(strings.TrimSpace(kernelID), "/")
	if !ok || owner == "" || slug == "" {
		return Notebook{}, perr.NotFoundf("kernel id %q is not owner/slug", kernelID)
	}

	body, err := c.get(ctx, "/kernels/pull", map[string]string{
		"userName":   owner,
		"kernelSlug": slug,
	})
	if err != nil {
		return Notebook{}, perr.WithField(err, kernelID)
	}
	resp, err := bind.DecodeBytes[pullResponse](body)
	if err != nil {
		return Notebook{}, malformedResponse(err, "kernel %s: undecodable pull response", kernelID)
	}
	return toNotebook(kernelID, resp)
}

func (c *Client) listPage(ctx context.Context, path string, query map[string]string) ([]apiRecord, error) {
	body, err := c.get(ctx, path, query)
	if err != nil {
		return nil, err
	}
	// some endpoints answer an empty page with a bare null
	if s := strings.TrimSpace(string(body)); s == "" || s == "null" {
		return nil, nil
	}
	var recs []apiRecord
	if err := json.Unmarshal(body, &recs); err != nil {
		return nil, malformedResponse(err, "kaggle %s page %s: undecodable listing", path, query["page"])
	}
	return recs, nil
}
