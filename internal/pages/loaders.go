package pages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/pageline/pageline/internal/cms"
	"github.com/pageline/pageline/internal/pipeline"
)

// Default returns a registry with the home, section and story loaders.
func Default() *Registry {
	r := NewRegistry()
	r.MustRegister(HomePage, pipeline.DataLoaderFunc(loadHome))
	r.MustRegister(SectionPage, pipeline.DataLoaderFunc(loadSection))
	r.MustRegister(StoryPage, pipeline.DataLoaderFunc(loadStory))
	return r
}

func loadHome(ctx context.Context, req pipeline.LoadRequest) (pipeline.Outcome, error) {
	collection, err := fetchCollection(ctx, req.Client, "home")
	if err != nil {
		return pipeline.Outcome{}, err
	}
	title, _ := req.Config.Get("publisher-name")
	name, _ := title.(string)
	return pipeline.Found(pipeline.LoadResult{
		Data:      map[string]any{"collection": collection},
		Title:     name,
		CacheKeys: []string{"collection/home"},
		Fields:    map[string]any{"pageType": HomePage},
	}), nil
}

func loadSection(ctx context.Context, req pipeline.LoadRequest) (pipeline.Outcome, error) {
	view, _ := cms.DecodeView(req.Config)
	id, ok := intParam(req.Params["sectionId"])
	if !ok {
		return pipeline.Pass(), nil
	}
	var section *cms.Section
	for i := range view.Sections {
		if view.Sections[i].ID == id {
			section = &view.Sections[i]
			break
		}
	}
	if section == nil {
		return pipeline.Pass(), nil
	}
	collection, err := fetchCollection(ctx, req.Client, section.Slug)
	if err != nil {
		return pipeline.Outcome{}, err
	}
	return pipeline.Found(pipeline.LoadResult{
		Data: map[string]any{
			"section":    map[string]any{"id": section.ID, "slug": section.Slug, "name": section.Name},
			"collection": collection,
		},
		Title:     section.Name,
		CacheKeys: []string{fmt.Sprintf("section/%d", section.ID), "collection/" + section.Slug},
		Fields:    map[string]any{"pageType": SectionPage},
	}), nil
}

func loadStory(ctx context.Context, req pipeline.LoadRequest) (pipeline.Outcome, error) {
	section, _ := req.Params["sectionSlug"].(string)
	rest, _ := req.Params["0"].(string)
	if section == "" || rest == "" {
		return pipeline.Pass(), nil
	}
	story, err := req.Client.StoryBySlug(ctx, section+"/"+rest)
	if errors.Is(err, cms.ErrNotFound) {
		return pipeline.Pass(), nil
	}
	if err != nil {
		return pipeline.Outcome{}, err
	}
	headline, _ := story["headline"].(string)
	result := pipeline.LoadResult{
		Data:   map[string]any{"story": story},
		Title:  headline,
		Fields: map[string]any{"pageType": StoryPage},
	}
	if id, ok := story["id"].(string); ok && id != "" {
		result.CacheKeys = []string{"story/" + id}
	}
	return pipeline.Found(result), nil
}

// NotFoundLoader is the error loader used when not-found handling is on:
// route misses become a 404 not-found page, other failures a 500 one.
var NotFoundLoader = pipeline.ErrorLoaderFunc(func(_ context.Context, cause error, _ cms.Config, _ pipeline.LoadOptions) (pipeline.LoadResult, error) {
	code := http.StatusInternalServerError
	if errors.Is(cause, pipeline.ErrRouteNotFound) {
		code = http.StatusNotFound
	}
	return pipeline.LoadResult{
		Data:           map[string]any{},
		HTTPStatusCode: code,
		Fields:         map[string]any{"pageType": NotFound},
	}, nil
})

func fetchCollection(ctx context.Context, client cms.Client, slug string) (json.RawMessage, error) {
	if client == nil {
		return nil, errors.New("cms client unavailable")
	}
	raw, err := client.Collection(ctx, slug)
	if errors.Is(err, cms.ErrNotFound) {
		return nil, nil
	}
	return raw, err
}

func intParam(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	default:
		return 0, false
	}
}
