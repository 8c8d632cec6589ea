package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"paysession/utils"
)

// QRStrategy is how a QR payload gets presented.
type QRStrategy string

const (
	QRStrategyImage       QRStrategy = "image"
	QRStrategyEncode      QRStrategy = "encode"
	QRStrategyRawFallback QRStrategy = "raw_fallback"
)

// QRAction is the user action offered next to a raw payload.
type QRAction string

const (
	QRActionNone     QRAction = ""
	QRActionOpenLink QRAction = "open_link"
	QRActionCopy     QRAction = "copy"
)

// QRRenderDecision is the outcome of resolving a QR payload.
type QRRenderDecision struct {
	Strategy QRStrategy
	Payload  string
	Image    []byte   // loaded or generated image bytes; nil for raw fallback
	Action   QRAction // raw fallback only
	Err      error    // why the raw fallback was chosen
}

// PayloadKind classifies a QR payload string.
type PayloadKind int

const (
	PayloadData PayloadKind = iota
	PayloadRemoteImage
	PayloadInlineImage
)

// ClassifyPayload decides whether payload references an image or is data to encode.
func ClassifyPayload(payload string) PayloadKind {
	p := strings.TrimSpace(payload)
	lower := strings.ToLower(p)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return PayloadRemoteImage
	case strings.HasPrefix(lower, "data:image/"):
		return PayloadInlineImage
	default:
		return PayloadData
	}
}

// ImageLoader fetches a remote image.
type ImageLoader interface {
	LoadImage(ctx context.Context, rawURL string) ([]byte, error)
}

// QREncoder turns a payload into a scannable code image.
type QREncoder interface {
	Encode(payload string) ([]byte, error)
}

// QRResolver picks a render strategy for a QR payload: remote image (bounded
// wait), client-side encoding, or raw payload display.
type QRResolver struct {
	loader      ImageLoader
	encoder     QREncoder
	loadTimeout time.Duration
}

// NewQRResolver builds a resolver. loadTimeout defaults to 1200ms.
func NewQRResolver(loader ImageLoader, encoder QREncoder, loadTimeout time.Duration) *QRResolver {
	if loadTimeout <= 0 {
		loadTimeout = 1200 * time.Millisecond
	}
	return &QRResolver{loader: loader, encoder: encoder, loadTimeout: loadTimeout}
}

type loadResult struct {
	image []byte
	err   error
}

// Resolve returns the decision for payload. For remote images the load window
// is soft: if the load finishes successfully after the window expired,
// upgrade (when non-nil) receives a single image decision.
func (r *QRResolver) Resolve(ctx context.Context, payload string, upgrade func(QRRenderDecision)) QRRenderDecision {
	payload = strings.TrimSpace(payload)

	var decision QRRenderDecision
	switch ClassifyPayload(payload) {
	case PayloadRemoteImage:
		decision = r.resolveRemote(ctx, payload, upgrade)
	case PayloadInlineImage:
		decision = r.resolveInline(payload)
	default:
		decision = r.resolveEncoded(payload)
	}

	qrDecisions.WithLabelValues(string(decision.Strategy)).Inc()
	utils.Debug("qr", "QR payload resolved", "strategy", decision.Strategy, "action", decision.Action)
	return decision
}

func (r *QRResolver) resolveRemote(ctx context.Context, payload string, upgrade func(QRRenderDecision)) QRRenderDecision {
	if r.loader == nil {
		return rawFallback(payload, fmt.Errorf("%w: no image loader", ErrRenderResolutionExhausted))
	}

	results := make(chan loadResult, 1)
	// the load outlives the window on purpose so a late success can upgrade
	loadCtx := context.WithoutCancel(ctx)
	go func() {
		img, err := r.loader.LoadImage(loadCtx, payload)
		results <- loadResult{image: img, err: err}
	}()

	window := time.NewTimer(r.loadTimeout)
	defer window.Stop()

	select {
	case res := <-results:
		if res.err != nil {
			utils.Warn("qr", "QR image load failed", "url", payload, "error", res.err)
			return rawFallback(payload, fmt.Errorf("%w: %v", ErrRenderResolutionExhausted, res.err))
		}
		return QRRenderDecision{Strategy: QRStrategyImage, Payload: payload, Image: res.image}
	case <-window.C:
		utils.Info("qr", "QR image load exceeded window, showing raw payload", "url", payload, "window", r.loadTimeout)
	case <-ctx.Done():
	}

	if upgrade != nil {
		go func() {
			res := <-results
			if res.err == nil {
				utils.Info("qr", "Late QR image load succeeded, upgrading", "url", payload)
				qrDecisions.WithLabelValues(string(QRStrategyImage)).Inc()
				upgrade(QRRenderDecision{Strategy: QRStrategyImage, Payload: payload, Image: res.image})
			}
		}()
	}
	return rawFallback(payload, fmt.Errorf("%w: image load timed out", ErrRenderResolutionExhausted))
}

func (r *QRResolver) resolveInline(payload string) QRRenderDecision {
	comma := strings.IndexByte(payload, ',')
	if comma < 0 || !strings.Contains(payload[:comma], ";base64") {
		return rawFallback(payload, fmt.Errorf("%w: unsupported data uri", ErrRenderResolutionExhausted))
	}
	img, err := base64.StdEncoding.DecodeString(payload[comma+1:])
	if err != nil || len(img) == 0 {
		return rawFallback(payload, fmt.Errorf("%w: bad inline image", ErrRenderResolutionExhausted))
	}
	return QRRenderDecision{Strategy: QRStrategyImage, Payload: payload, Image: img}
}

func (r *QRResolver) resolveEncoded(payload string) QRRenderDecision {
	if r.encoder == nil {
		return rawFallback(payload, fmt.Errorf("%w: no encoder", ErrRenderResolutionExhausted))
	}
	img, err := r.encoder.Encode(payload)
	if err != nil {
		utils.Warn("qr", "QR encoding failed", "error", err)
		return rawFallback(payload, fmt.Errorf("%w: %v", ErrRenderResolutionExhausted, err))
	}
	return QRRenderDecision{Strategy: QRStrategyEncode, Payload: payload, Image: img}
}

func rawFallback(payload string, err error) QRRenderDecision {
	action := QRActionCopy
	if isLink(payload) {
		action = QRActionOpenLink
	}
	return QRRenderDecision{Strategy: QRStrategyRawFallback, Payload: payload, Action: action, Err: err}
}

func isLink(payload string) bool {
	u, err := url.Parse(payload)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// QRPresenter holds the current QR decision for presentation. It re-resolves
// only when the payload changes and ignores upgrades for superseded payloads.
type QRPresenter struct {
	resolver *QRResolver
	onChange func(QRRenderDecision)

	mu         sync.Mutex
	gen        uint64
	payload    string
	current    QRRenderDecision
	currentGen uint64
	resolved   bool
}

// NewQRPresenter builds a presenter; onChange may be nil.
func NewQRPresenter(resolver *QRResolver, onChange func(QRRenderDecision)) *QRPresenter {
	return &QRPresenter{resolver: resolver, onChange: onChange}
}

// SetPayload resolves payload unless it equals the current, already resolved
// one, publishes the decision and returns it.
func (p *QRPresenter) SetPayload(ctx context.Context, payload string) QRRenderDecision {
	p.mu.Lock()
	if p.resolved && p.payload == payload && p.currentGen == p.gen {
		current := p.current
		p.mu.Unlock()
		return current
	}
	p.gen++
	gen := p.gen
	p.payload = payload
	p.mu.Unlock()

	decision := p.resolver.Resolve(ctx, payload, func(up QRRenderDecision) {
		p.publish(gen, up)
	})
	p.publish(gen, decision)
	return decision
}

// Current returns the latest decision.
func (p *QRPresenter) Current() (QRRenderDecision, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, p.resolved
}

func (p *QRPresenter) publish(gen uint64, decision QRRenderDecision) {
	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		return
	}
	// an upgrade may land before the initial decision is published
	if p.resolved && p.currentGen == gen && p.current.Strategy == QRStrategyImage && decision.Strategy != QRStrategyImage {
		p.mu.Unlock()
		return
	}
	p.current = decision
	p.currentGen = gen
	p.resolved = true
	p.mu.Unlock()

	if p.onChange != nil {
		p.onChange(decision)
	}
}
