package providers

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// blockable maps the configured names to DevTools resource types.
var blockable = map[string]proto.NetworkResourceType{
	"images":      proto.NetworkResourceTypeImage,
	"fonts":       proto.NetworkResourceTypeFont,
	"media":       proto.NetworkResourceTypeMedia,
	"stylesheets": proto.NetworkResourceTypeStylesheet,
}

// chartCritical resources are always let through; the chart is built by
// scripts that load their data over XHR.
var chartCritical = map[proto.NetworkResourceType]bool{
	proto.NetworkResourceTypeDocument: true,
	proto.NetworkResourceTypeScript:   true,
	proto.NetworkResourceTypeXHR:      true,
	proto.NetworkResourceTypeFetch:    true,
}

// blockedTypes resolves configured names into the set of resource types to
// fail. Unknown names are ignored.
func blockedTypes(names []string) map[proto.NetworkResourceType]bool {
	out := make(map[proto.NetworkResourceType]bool, len(names))
	for _, n := range names {
		if t, ok := blockable[strings.ToLower(strings.TrimSpace(n))]; ok && !chartCritical[t] {
			out[t] = true
		}
	}
	return out
}

// blockResources fails requests of the configured types on page. The caller
// stops the returned router.
func blockResources(page *rod.Page, names []string) *rod.HijackRouter {
	blocked := blockedTypes(names)

	router := page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		if blocked[h.Request.Type()] {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()

	return router
}
