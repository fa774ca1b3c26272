package pages

import (
	"fmt"
	"path/filepath"
)

// ReconcileResult is the outcome of diffing an incoming token list against
// the previously known asset list.
type ReconcileResult struct {
	// Assets is the new ordered asset list.
	Assets []*Asset

	// UITokens parallels Assets, one lightweight token per asset for
	// re-rendering the upload widget.
	UITokens []UIToken

	// Removed holds the previous assets that no longer appear; the caller
	// owns their cleanup.
	Removed []*Asset
}

// Reconcile computes the new ordered asset list from the incoming upload
// tokens and the previous assets. Identity is keyed by preview path: a
// token resolving to a known preview moves the existing asset to its new
// position without re-ingesting, so reordering never re-renders PDF pages.
// Fresh tokens are classified and ingested in place (one asset for an
// image, N for a multi-page PDF). An unsupported token aborts the whole
// call, discarding any partially ingested previews, and the previous list
// stays authoritative.
//
// Tokens with an empty path are skipped silently; they are treated as noise
// from malformed surface events, logged at debug level only.
func (ing *Ingestor) Reconcile(tokens []UploadToken, prev []*Asset) (*ReconcileResult, error) {
	known := make(map[string]*Asset, len(prev))
	for _, asset := range prev {
		known[asset.PreviewPath] = asset
	}

	result := &ReconcileResult{}
	var fresh []*Asset

	// discard releases previews generated during this call, restoring the
	// no-partial-commit guarantee on failure.
	discard := func() {
		for _, a := range fresh {
			if a.TempPreview {
				ing.Tracker.Release(a.PreviewPath, true)
			}
		}
	}

	appendAsset := func(asset *Asset) {
		result.Assets = append(result.Assets, asset)
		result.UITokens = append(result.UITokens, UIToken{
			Path:  asset.PreviewPath,
			Label: asset.DisplayName,
		})
	}

	for _, token := range tokens {
		if token.Path == "" {
			ing.Logger.Debug("Skipping upload token with no resolvable path")
			continue
		}

		if asset, ok := known[token.Path]; ok {
			delete(known, token.Path)
			appendAsset(asset)
			continue
		}

		switch Classify(token.Path) {
		case ClassImage:
			asset, err := ing.Image(token.Path, token.DisplayName)
			if err != nil {
				discard()
				return nil, err
			}
			fresh = append(fresh, asset)
			appendAsset(asset)

		case ClassPDF:
			pageAssets, err := ing.PDF(token.Path)
			if err != nil {
				discard()
				return nil, err
			}
			fresh = append(fresh, pageAssets...)
			for _, asset := range pageAssets {
				appendAsset(asset)
			}

		default:
			discard()
			return nil, fmt.Errorf("%w: %q, add images or PDF documents", ErrUnsupportedFileType, filepath.Base(token.Path))
		}
	}

	// Whatever was not consumed from the lookup has been dropped by the
	// user and is handed back for cleanup.
	for _, asset := range prev {
		if _, stillKnown := known[asset.PreviewPath]; stillKnown {
			result.Removed = append(result.Removed, asset)
		}
	}

	return result, nil
}
