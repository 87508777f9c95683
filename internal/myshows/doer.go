package myshows

import (
	"net/http"
	"time"
)

//go:generate mockgen -destination=../mocks/doer.go -package=mocks github.com/olegsh/myshows-backup/internal/myshows Doer
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// newHTTPClient builds the pooled client both variants share. The pool
// is sized for the runner's concurrency so workers never fight over
// connections.
func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 15 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 20,
		},
	}
}
