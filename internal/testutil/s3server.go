package testutil

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// S3Server is a minimal path-style S3 endpoint: object GET/HEAD with byte
// ranges and ListObjectsV2 with continuation tokens. It is enough for both the AWS SDK
// and minio-go.
type S3Server struct {
	*httptest.Server

	BucketName string
	Objects    map[string][]byte
	PageSize   int

	mu       sync.Mutex
	gets     []string
	prefixes []string
}

func NewS3Server(bucket string, objects map[string][]byte, pageSize int) *S3Server {
	s := &S3Server{BucketName: bucket, Objects: objects, PageSize: pageSize}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

func (s *S3Server) GetRequests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.gets...)
}

func (s *S3Server) ListRequests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prefixes...)
}

var modTime = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

func (s *S3Server) handle(w http.ResponseWriter, r *http.Request) {
	bucket, key, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if bucket != s.BucketName {
		writeS3Error(w, r, http.StatusNotFound, "NoSuchBucket", bucket, key)
		return
	}

	if key == "" {
		if r.Method == http.MethodGet && r.URL.Query().Get("list-type") == "2" {
			s.list(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	if r.Method == http.MethodGet {
		s.mu.Lock()
		s.gets = append(s.gets, key)
		s.mu.Unlock()
	}

	data, ok := s.Objects[key]
	if !ok {
		writeS3Error(w, r, http.StatusNotFound, "NoSuchKey", bucket, key)
		return
	}

	// ServeContent answers Range requests with 206 and Content-Range.
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("ETag", fmt.Sprintf("%q", fmt.Sprintf("etag-%d", len(data))))
	http.ServeContent(w, r, key, modTime, bytes.NewReader(data))
}

type listEntry struct {
	Key          string `xml:"Key"`
	LastModified string `xml:"LastModified"`
	ETag         string `xml:"ETag"`
	Size         int64  `xml:"Size"`
	StorageClass string `xml:"StorageClass"`
}

type listBucketResult struct {
	XMLName               xml.Name    `xml:"http://s3.amazonaws.com/doc/2006-03-01/ ListBucketResult"`
	Name                  string      `xml:"Name"`
	Prefix                string      `xml:"Prefix"`
	KeyCount              int         `xml:"KeyCount"`
	MaxKeys               int         `xml:"MaxKeys"`
	IsTruncated           bool        `xml:"IsTruncated"`
	ContinuationToken     string      `xml:"ContinuationToken,omitempty"`
	NextContinuationToken string      `xml:"NextContinuationToken,omitempty"`
	Contents              []listEntry `xml:"Contents"`
}

func (s *S3Server) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	prefix := q.Get("prefix")
	token := q.Get("continuation-token")

	if token == "" {
		s.mu.Lock()
		s.prefixes = append(s.prefixes, prefix)
		s.mu.Unlock()
	}

	var keys []string
	for k := range s.Objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if token != "" {
		start, _ = strconv.Atoi(token)
	}
	pageSize := s.PageSize
	if pageSize <= 0 {
		pageSize = 1000
	}
	end := min(start+pageSize, len(keys))

	res := listBucketResult{
		Name:              s.BucketName,
		Prefix:            prefix,
		MaxKeys:           pageSize,
		ContinuationToken: token,
	}
	for _, k := range keys[start:end] {
		res.Contents = append(res.Contents, listEntry{
			Key:          k,
			LastModified: modTime.Format(time.RFC3339),
			ETag:         fmt.Sprintf("%q", fmt.Sprintf("etag-%d", len(s.Objects[k]))),
			Size:         int64(len(s.Objects[k])),
			StorageClass: "STANDARD",
		})
	}
	res.KeyCount = len(res.Contents)
	if end < len(keys) {
		res.IsTruncated = true
		res.NextContinuationToken = strconv.Itoa(end)
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(xml.Header))
	_ = xml.NewEncoder(w).Encode(res)
}

type s3Error struct {
	XMLName    xml.Name `xml:"Error"`
	Code       string   `xml:"Code"`
	Message    string   `xml:"Message"`
	BucketName string   `xml:"BucketName,omitempty"`
	Key        string   `xml:"Key,omitempty"`
	RequestID  string   `xml:"RequestId"`
}

func writeS3Error(w http.ResponseWriter, r *http.Request, status int, code, bucket, key string) {
	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("x-amz-request-id", "test-request")
	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write([]byte(xml.Header))
	_ = xml.NewEncoder(w).Encode(s3Error{
		Code:       code,
		Message:    "The specified resource does not exist.",
		BucketName: bucket,
		Key:        key,
		RequestID:  "test-request",
	})
}
