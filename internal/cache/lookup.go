package cache

import (
	"context"
	"errors"
)

// Match 描述一次宽松查找的结果。
type Match struct {
	Entry   Entry
	Matcher string
}

// Find 先精确匹配，再按 matchers 顺序扫描命名空间；第一个命中的策略胜出。
func Find(ctx context.Context, store Store, namespace, query string, matchers []Matcher) (Match, error) {
	if store == nil {
		return Match{}, ErrStoreUnavailable
	}
	for _, key := range exactCandidates(query) {
		result, err := store.Get(ctx, Locator{Namespace: namespace, Key: key})
		switch {
		case err == nil:
			result.Reader.Close()
			return Match{Entry: result.Entry, Matcher: "exact"}, nil
		case errors.Is(err, ErrNotFound):
		default:
			return Match{}, err
		}
	}

	if len(matchers) == 0 {
		return Match{}, ErrNotFound
	}
	entries, err := store.List(ctx, namespace)
	if err != nil {
		return Match{}, err
	}
	for _, matcher := range matchers {
		for _, entry := range entries {
			if matcher.Match(query, entry.Locator.Key) {
				return Match{Entry: entry, Matcher: matcher.Name}, nil
			}
		}
	}
	return Match{}, ErrNotFound
}

// Resolve 按 Find 的策略定位条目并打开正文。
func Resolve(ctx context.Context, store Store, namespace, query string) (*ReadResult, string, error) {
	match, err := Find(ctx, store, namespace, query, DefaultMatchers)
	if err != nil {
		return nil, "", err
	}
	result, err := store.Get(ctx, match.Entry.Locator)
	if err != nil {
		return nil, "", err
	}
	return result, match.Matcher, nil
}

// Delete 宽松删除：返回是否确有条目被删除；重复删除返回 false 且不报错。
func Delete(ctx context.Context, store Store, namespace, query string) (bool, error) {
	match, err := Find(ctx, store, namespace, query, DefaultMatchers)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := store.Remove(ctx, match.Entry.Locator); err != nil {
		return false, err
	}
	return true, nil
}

func exactCandidates(query string) []string {
	if query == "" {
		return nil
	}
	candidates := []string{query}
	if canonical, err := Canonicalize(query); err == nil && canonical != query {
		candidates = append(candidates, canonical)
	}
	return candidates
}
