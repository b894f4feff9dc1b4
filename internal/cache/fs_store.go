package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	bodySuffix  = ".body"
	metaSuffix  = ".meta"
	versionFile = "VERSION"
)

// NewStore 以 basePath 为根目录构建磁盘缓存，整站复用一份实例。
func NewStore(basePath string) (Store, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}

	return &fileStore{
		basePath: abs,
		locks:    make(map[string]*entryLock),
	}, nil
}

// fileStore 通过 entryLock 串行化同一 Locator 的写入/删除，读取不加锁。
type fileStore struct {
	basePath string

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

// entryMeta 是 .meta 旁路文件的内容。
type entryMeta struct {
	Key         string    `json:"key"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	StoredAt    time.Time `json:"stored_at"`
}

func (s *fileStore) Get(ctx context.Context, locator Locator) (*ReadResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	bodyPath, metaPath, err := s.entryPaths(locator)
	if err != nil {
		return nil, err
	}

	meta, err := readMeta(metaPath)
	if err != nil {
		return nil, err
	}

	// 与删除竞争时文件可能在 stat/open 之间消失，统一视为未命中。
	f, err := os.Open(bodyPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, ErrNotFound
	}

	return &ReadResult{
		Entry:  buildEntry(locator, bodyPath, meta, info),
		Reader: f,
	}, nil
}

func (s *fileStore) Put(ctx context.Context, locator Locator, body io.Reader, opts PutOptions) (*Entry, error) {
	unlock := s.lockEntry(locator)
	defer unlock()

	bodyPath, metaPath, err := s.entryPaths(locator)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(bodyPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	written, err := writeAtomic(dir, bodyPath, func(w io.Writer) (int64, error) {
		return copyWithContext(ctx, w, body)
	})
	if err != nil {
		return nil, err
	}

	modTime := opts.ModTime
	if modTime.IsZero() {
		modTime = time.Now().UTC()
	}
	meta := entryMeta{
		Key:         locator.Key,
		ContentType: opts.ContentType,
		SizeBytes:   written,
		StoredAt:    modTime,
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	if _, err := writeAtomic(dir, metaPath, func(w io.Writer) (int64, error) {
		n, err := w.Write(raw)
		return int64(n), err
	}); err != nil {
		os.Remove(bodyPath)
		return nil, err
	}
	if err := os.Chtimes(bodyPath, modTime, modTime); err != nil {
		return nil, err
	}

	entry := Entry{
		Locator:      locator,
		FilePath:     bodyPath,
		SizeBytes:    written,
		ContentType:  opts.ContentType,
		ModTime:      modTime,
		recordedSize: written,
	}
	return &entry, nil
}

func (s *fileStore) Remove(ctx context.Context, locator Locator) error {
	unlock := s.lockEntry(locator)
	defer unlock()

	bodyPath, metaPath, err := s.entryPaths(locator)
	if err != nil {
		return err
	}
	// 先删 meta，读取方以 meta 为准，避免读到“有 meta 无正文”以外的半状态。
	if err := os.Remove(metaPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.Remove(bodyPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *fileStore) RemoveInvalid(ctx context.Context, locator Locator) (bool, error) {
	unlock := s.lockEntry(locator)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return false, err
	}
	bodyPath, metaPath, err := s.entryPaths(locator)
	if err != nil {
		return false, err
	}
	// 持锁重新检查：并发 Put 可能已写入完整条目。
	meta, err := readMeta(metaPath)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err == nil {
		info, statErr := os.Stat(bodyPath)
		if statErr == nil && !info.IsDir() && buildEntry(locator, bodyPath, meta, info).Valid() {
			return false, nil
		}
	}
	if err := os.Remove(metaPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}
	if err := os.Remove(bodyPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}
	return true, nil
}

func (s *fileStore) List(ctx context.Context, namespace string) ([]Entry, error) {
	dir, err := s.namespaceDir(namespace)
	if err != nil {
		return nil, err
	}
	items, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	entries := make([]Entry, 0, len(items))
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := item.Name()
		if item.IsDir() || !strings.HasSuffix(name, metaSuffix) {
			continue
		}
		meta, err := readMeta(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		bodyPath := filepath.Join(dir, strings.TrimSuffix(name, metaSuffix)+bodySuffix)
		info, err := os.Stat(bodyPath)
		if err != nil || info.IsDir() {
			continue
		}
		locator := Locator{Namespace: namespace, Key: meta.Key}
		entries = append(entries, buildEntry(locator, bodyPath, meta, info))
	}
	return entries, nil
}

func (s *fileStore) TotalSize(ctx context.Context, namespace string) (int64, error) {
	entries, err := s.List(ctx, namespace)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, entry := range entries {
		total += entry.SizeBytes
	}
	return total, nil
}

func (s *fileStore) Version() string {
	raw, err := os.ReadFile(filepath.Join(s.basePath, versionFile))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}

func (s *fileStore) Reset(ctx context.Context, version string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := os.ReadDir(s.basePath)
	if err != nil {
		return err
	}
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !ownedByStore(item.Name()) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.basePath, item.Name())); err != nil {
			return err
		}
	}
	_, err = writeAtomic(s.basePath, filepath.Join(s.basePath, versionFile), func(w io.Writer) (int64, error) {
		n, err := io.WriteString(w, version+"\n")
		return int64(n), err
	})
	return err
}

// ownedByStore 限定 Reset 的作用范围：存储目录可能与配置、日志等文件共用。
func ownedByStore(name string) bool {
	switch name {
	case NamespaceMedia, NamespaceSettings, versionFile:
		return true
	}
	return strings.HasPrefix(name, ".cache-")
}

func (s *fileStore) lockEntry(locator Locator) func() {
	key := locatorKey(locator)
	s.mu.Lock()
	lock := s.locks[key]
	if lock == nil {
		lock = &entryLock{}
		s.locks[key] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

func (s *fileStore) namespaceDir(namespace string) (string, error) {
	if namespace == "" {
		return "", errors.New("namespace required")
	}
	if strings.ContainsAny(namespace, `/\`) || namespace == "." || namespace == ".." {
		return "", fmt.Errorf("invalid namespace %q", namespace)
	}
	return filepath.Join(s.basePath, namespace), nil
}

// entryPaths 以 key 的 sha1 作为文件名，任意 URL 都能安全落盘。
func (s *fileStore) entryPaths(locator Locator) (string, string, error) {
	dir, err := s.namespaceDir(locator.Namespace)
	if err != nil {
		return "", "", err
	}
	if locator.Key == "" {
		return "", "", errors.New("cache key required")
	}
	sum := sha1.Sum([]byte(locator.Key))
	name := hex.EncodeToString(sum[:])
	return filepath.Join(dir, name+bodySuffix), filepath.Join(dir, name+metaSuffix), nil
}

func readMeta(path string) (entryMeta, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return entryMeta{}, ErrNotFound
		}
		return entryMeta{}, err
	}
	var meta entryMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return entryMeta{}, fmt.Errorf("decode cache meta %s: %w", filepath.Base(path), err)
	}
	return meta, nil
}

func buildEntry(locator Locator, bodyPath string, meta entryMeta, info fs.FileInfo) Entry {
	return Entry{
		Locator:      locator,
		FilePath:     bodyPath,
		SizeBytes:    info.Size(),
		ContentType:  meta.ContentType,
		ModTime:      info.ModTime(),
		recordedSize: meta.SizeBytes,
	}
}

// writeAtomic 先写同目录临时文件再 rename，失败时清理临时文件。
func writeAtomic(dir, target string, fill func(io.Writer) (int64, error)) (int64, error) {
	tempFile, err := os.CreateTemp(dir, ".cache-*")
	if err != nil {
		return 0, err
	}
	tempName := tempFile.Name()

	written, err := fill(tempFile)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return 0, err
	}

	if err := os.Rename(tempName, target); err != nil {
		os.Remove(tempName)
		return 0, err
	}
	return written, nil
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var copied int64
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			w, wErr := dst.Write(buf[:n])
			copied += int64(w)
			if wErr != nil {
				return copied, wErr
			}
			if w < n {
				return copied, io.ErrShortWrite
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return copied, nil
			}
			return copied, err
		}
	}
}

func locatorKey(locator Locator) string {
	return locator.Namespace + "::" + locator.Key
}
