package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// blockable maps CDP resource type names to the plural names used in config.
var blockable = map[string]string{
	"image":      "images",
	"font":       "fonts",
	"media":      "media",
	"stylesheet": "stylesheets",
}

// applyResourceBlocking drops the configured resource types before fetch.
// The listing data lives in the markup; everything else is render weight.
func applyResourceBlocking(page *rod.Page, types []string) error {
	blocked := make(map[string]bool, len(types))
	for _, t := range types {
		blocked[strings.ToLower(t)] = true
	}

	router := page.HijackRequests()
	router.MustAdd("*", func(ctx *rod.Hijack) {
		if shouldBlock(blocked, string(ctx.Request.Type())) {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()

	return nil
}

func shouldBlock(blocked map[string]bool, resType string) bool {
	lower := strings.ToLower(resType)
	if name, ok := blockable[lower]; ok {
		return blocked[name]
	}
	return blocked[lower]
}
