package roddoc

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/restyle/persist"
)

// LocalStorage is a persist.KV over the page's window.localStorage, which
// the browser already scopes to the page origin.
type LocalStorage struct {
	page *rod.Page
}

var _ persist.KV = (*LocalStorage)(nil)

// NewLocalStorage returns the localStorage KV of page.
func NewLocalStorage(page *rod.Page) *LocalStorage {
	return &LocalStorage{page: page}
}

func (s *LocalStorage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	res, err := s.page.Context(ctx).Eval(`function(k) {
		const v = window.localStorage.getItem(k);
		return v === null ? {found: false} : {found: true, value: v};
	}`, key)
	if err != nil {
		return nil, false, fmt.Errorf("roddoc: localStorage get %s: %w", key, err)
	}
	if !res.Value.Get("found").Bool() {
		return nil, false, nil
	}
	return []byte(res.Value.Get("value").Str()), true, nil
}

func (s *LocalStorage) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.page.Context(ctx).Eval(`function(k, v) { window.localStorage.setItem(k, v); }`, key, string(value))
	if err != nil {
		return fmt.Errorf("roddoc: localStorage put %s: %w", key, err)
	}
	return nil
}
