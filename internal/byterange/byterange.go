// Package byterange rebuilds HTTP byte-range responses from a fully cached
// blob. Reconstruct is pure: the same blob and header always produce the same
// result, and the returned body aliases the input without copying.
package byterange

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
)

// Kind 区分整文件、部分内容与不可满足三种结果。
type Kind int

const (
	Full Kind = iota
	Partial
	Unsatisfiable
)

func (k Kind) String() string {
	switch k {
	case Full:
		return "full"
	case Partial:
		return "partial"
	case Unsatisfiable:
		return "unsatisfiable"
	}
	return "unknown"
}

// Spec 是解析后的 bytes=start-end；End 为 -1 表示未指定结尾。
type Spec struct {
	Start int64
	End   int64
}

// Result 描述一次重建的结果。Start/End 为闭区间，Total 为完整长度。
type Result struct {
	Kind  Kind
	Body  []byte
	Start int64
	End   int64
	Total int64
}

var rangePattern = regexp.MustCompile(`(?i)^bytes=(\d+)-(\d*)$`)

// Parse 解析 Range 头；不符合单区间格式时返回 false。
// 超出 int64 的数字截断为 math.MaxInt64，由 Reconstruct 判定为越界。
func Parse(header string) (Spec, bool) {
	m := rangePattern.FindStringSubmatch(strings.TrimSpace(header))
	if m == nil {
		return Spec{}, false
	}
	start, err := parseBound(m[1])
	if err != nil {
		return Spec{}, false
	}
	end := int64(-1)
	if m[2] != "" {
		end, err = parseBound(m[2])
		if err != nil {
			return Spec{}, false
		}
	}
	return Spec{Start: start, End: end}, true
}

func parseBound(digits string) (int64, error) {
	v, err := strconv.ParseInt(digits, 10, 64)
	if errors.Is(err, strconv.ErrRange) {
		return math.MaxInt64, nil
	}
	return v, err
}

// Reconstruct 按 Range 头从完整 blob 中切出对应区间。
// 无头或无法解析时返回整文件；越界或 start>end 时返回 Unsatisfiable。
func Reconstruct(blob []byte, header string) Result {
	total := int64(len(blob))
	full := Result{Kind: Full, Body: blob, Start: 0, End: total - 1, Total: total}
	if strings.TrimSpace(header) == "" {
		return full
	}
	spec, ok := Parse(header)
	if !ok {
		return full
	}
	end := spec.End
	if end < 0 {
		end = total - 1
	}
	if spec.Start >= total || end >= total || spec.Start > end {
		return Result{Kind: Unsatisfiable, Total: total}
	}
	return Result{
		Kind:  Partial,
		Body:  blob[spec.Start : end+1],
		Start: spec.Start,
		End:   end,
		Total: total,
	}
}

// Status 返回对应的 HTTP 状态码。
func (r Result) Status() int {
	switch r.Kind {
	case Partial:
		return http.StatusPartialContent
	case Unsatisfiable:
		return http.StatusRequestedRangeNotSatisfiable
	}
	return http.StatusOK
}

// ContentLength 返回响应正文长度。
func (r Result) ContentLength() int64 {
	return int64(len(r.Body))
}

// ContentRange 返回 Content-Range 头的值；整文件时为空串。
func (r Result) ContentRange() string {
	switch r.Kind {
	case Partial:
		return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, r.Total)
	case Unsatisfiable:
		return fmt.Sprintf("bytes */%d", r.Total)
	}
	return ""
}
