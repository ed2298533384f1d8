// Package propagation moves a scopez.SpanContext across process boundaries
// through flat string-keyed carriers.
//
// The codecs only produce and consume SpanContext values; feeding an
// extracted context into scopez.ChildOf is how a remote parent is continued.
package propagation

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/zoobzio/scopez"
)

var (
	// ErrSpanContextNotFound means the carrier holds no trace fields.
	// Callers proceed without a parent.
	ErrSpanContextNotFound = errors.New("span context not found in carrier")

	// ErrSpanContextCorrupted means trace fields were present but unusable.
	ErrSpanContextCorrupted = errors.New("span context corrupted in carrier")

	// ErrInvalidCarrier means a nil carrier was supplied.
	ErrInvalidCarrier = errors.New("invalid carrier")
)

const (
	fieldTraceID   = "scopez-traceid"
	fieldSpanID    = "scopez-spanid"
	prefixBaggage  = "scopez-baggage-"
	maxTraceIDSize = 32
	maxSpanIDSize  = 16
)

// Carrier is a flat string-keyed map abstraction.
type Carrier interface {
	Set(key, value string)
	ForeachKey(handler func(key, value string) error) error
}

// TextMap is a Carrier over a plain map.
type TextMap map[string]string

// Set implements Carrier.
func (m TextMap) Set(key, value string) { m[key] = value }

// ForeachKey implements Carrier.
func (m TextMap) ForeachKey(handler func(key, value string) error) error {
	for k, v := range m {
		if err := handler(k, v); err != nil {
			return err
		}
	}
	return nil
}

// HTTPHeaders is a Carrier over http.Header.
type HTTPHeaders http.Header

// Set implements Carrier.
func (h HTTPHeaders) Set(key, value string) { http.Header(h).Set(key, value) }

// ForeachKey implements Carrier. Only the first value of each header is seen.
func (h HTTPHeaders) ForeachKey(handler func(key, value string) error) error {
	for k, vals := range h {
		if len(vals) == 0 {
			continue
		}
		if err := handler(k, vals[0]); err != nil {
			return err
		}
	}
	return nil
}

// Codec injects and extracts span contexts.
type Codec interface {
	Inject(sc scopez.SpanContext, carrier Carrier) error
	Extract(carrier Carrier) (scopez.SpanContext, error)
}

// TextCodec is the default Codec. Keys are scopez-traceid, scopez-spanid
// and scopez-baggage-<key>.
type TextCodec struct {
	urlEncoding bool
}

// NewTextCodec returns a codec writing values as-is.
func NewTextCodec() *TextCodec {
	return &TextCodec{}
}

// NewHTTPCodec returns a codec for carriers that must be header-safe.
// Baggage values are URL-escaped. Baggage keys are lowercased, since header
// names are case-insensitive, so "userID" extracts as "userid". Keys that
// are not valid header tokens are rejected on Inject.
func NewHTTPCodec() *TextCodec {
	return &TextCodec{urlEncoding: true}
}

// Inject writes sc into carrier. Invalid contexts are rejected with
// ErrSpanContextCorrupted so nothing half-formed is written.
func (c *TextCodec) Inject(sc scopez.SpanContext, carrier Carrier) error {
	if carrier == nil {
		return ErrInvalidCarrier
	}
	if !sc.IsValid() {
		return fmt.Errorf("%w: missing trace or span id", ErrSpanContextCorrupted)
	}

	if c.urlEncoding {
		var bad string
		valid := true
		sc.ForeachBaggageItem(func(k, _ string) bool {
			if !validHeaderToken(k) {
				bad, valid = k, false
			}
			return valid
		})
		if !valid {
			return fmt.Errorf("%w: baggage key %q is not a header token", ErrSpanContextCorrupted, bad)
		}
	}

	carrier.Set(fieldTraceID, sc.TraceID())
	carrier.Set(fieldSpanID, sc.SpanID())
	sc.ForeachBaggageItem(func(k, v string) bool {
		if c.urlEncoding {
			k = strings.ToLower(k)
			v = url.QueryEscape(v)
		}
		carrier.Set(prefixBaggage+k, v)
		return true
	})
	return nil
}

// Extract reads a SpanContext from carrier. Keys match case-insensitively.
func (c *TextCodec) Extract(carrier Carrier) (scopez.SpanContext, error) {
	if carrier == nil {
		return scopez.SpanContext{}, ErrInvalidCarrier
	}

	var traceID, spanID string
	var baggage map[string]string

	err := carrier.ForeachKey(func(k, v string) error {
		key := strings.ToLower(k)
		switch {
		case key == fieldTraceID:
			if err := checkHex(v, maxTraceIDSize); err != nil {
				return fmt.Errorf("%w: trace id: %v", ErrSpanContextCorrupted, err)
			}
			traceID = strings.ToLower(v)
		case key == fieldSpanID:
			if err := checkHex(v, maxSpanIDSize); err != nil {
				return fmt.Errorf("%w: span id: %v", ErrSpanContextCorrupted, err)
			}
			spanID = strings.ToLower(v)
		case strings.HasPrefix(key, prefixBaggage):
			if c.urlEncoding {
				unescaped, err := url.QueryUnescape(v)
				if err != nil {
					return fmt.Errorf("%w: baggage %q: %v", ErrSpanContextCorrupted, key, err)
				}
				v = unescaped
			}
			if baggage == nil {
				baggage = make(map[string]string)
			}
			name := k[len(prefixBaggage):]
			if c.urlEncoding {
				name = strings.ToLower(name)
			}
			baggage[name] = v
		}
		return nil
	})
	if err != nil {
		return scopez.SpanContext{}, err
	}

	switch {
	case traceID == "" && spanID == "":
		return scopez.SpanContext{}, ErrSpanContextNotFound
	case traceID == "" || spanID == "":
		return scopez.SpanContext{}, fmt.Errorf("%w: need both trace and span id", ErrSpanContextCorrupted)
	}
	return scopez.NewSpanContext(traceID, spanID, baggage), nil
}

func checkHex(v string, maxLen int) error {
	if v == "" || len(v) > maxLen {
		return fmt.Errorf("length %d out of range", len(v))
	}
	for _, r := range v {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return fmt.Errorf("non-hex character %q", r)
		}
	}
	return nil
}

// validHeaderToken reports whether k is an RFC 7230 token.
func validHeaderToken(k string) bool {
	if k == "" {
		return false
	}
	for i := 0; i < len(k); i++ {
		c := k[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case strings.IndexByte("!#$%&'*+-.^_`|~", c) >= 0:
		default:
			return false
		}
	}
	return true
}
