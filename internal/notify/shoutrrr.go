// Package notify sends push notifications about finished recordings and
// failed writes through shoutrrr.
package notify

import (
	"io"
	"log"
	"slices"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/tphakala/longrec/internal/errors"
	"github.com/tphakala/longrec/internal/logger"
)

const componentName = "notify"

// Sender delivers one message to every configured service.
type Sender interface {
	Name() string
	Send(title, body string) error
}

// ShoutrrrSender sends through a single shoutrrr router built from all
// configured service URLs.
type ShoutrrrSender struct {
	urls   []string
	router *router.ServiceRouter
}

// NewShoutrrrSender validates urls and builds the router.
func NewShoutrrrSender(urls []string, timeout time.Duration) (*ShoutrrrSender, error) {
	if len(urls) == 0 {
		return nil, errors.Newf("at least one notification URL is required").
			Component(componentName).
			Category(errors.CategoryConfiguration).
			Build()
	}
	r, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		return nil, sanitized(err, errors.CategoryConfiguration)
	}
	if timeout > 0 {
		r.Timeout = timeout
	}
	r.SetLogger(log.New(io.Discard, "", 0))
	return &ShoutrrrSender{urls: slices.Clone(urls), router: r}, nil
}

func (s *ShoutrrrSender) Name() string { return "shoutrrr" }

// Send returns the first failure reported by any service.
func (s *ShoutrrrSender) Send(title, body string) error {
	params := stypes.Params{}
	if title != "" {
		params.SetTitle(title)
	}
	for _, err := range s.router.Send(body, &params) {
		if err != nil {
			return sanitized(err, errors.CategoryNotification)
		}
	}
	return nil
}

// sanitized drops credentials that shoutrrr errors may echo from URLs.
func sanitized(err error, cat errors.ErrorCategory) error {
	return errors.New(errors.NewStd(logger.RedactSensitiveData(err.Error()))).
		Component(componentName).
		Category(cat).
		Build()
}
