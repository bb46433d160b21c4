// Package script renders the per-request fingerprint-collector script served
// from the `.js` pixel shape (spec.md §4.1) and caches the rendered bytes
// behind a bounded LRU, resolving the "evict-all on overflow" gap the spec
// itself invites improving on (spec.md §9) in favor of per-key bounded
// eviction. Grounded on teacher internal/cache/cache.go's
// `lru.Cache[string, *CacheEntry]` shape.
package script

import (
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheCapacity is the bounded LRU size named in spec.md §9's
// resolved open question.
const DefaultCacheCapacity = 10000

// Renderer renders and caches the fingerprint script for a (company, pixel,
// domain) key.
type Renderer struct {
	cache    *lru.Cache[string, []byte]
	template string
}

// New creates a Renderer wrapping templateText, which must contain the
// substitution placeholders {{COMPANY}}, {{PIXEL}}, {{DOMAIN}}.
func New(templateText string, capacity int) (*Renderer, error) {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	cache, err := lru.New[string, []byte](capacity)
	if err != nil {
		return nil, fmt.Errorf("script: creating cache: %w", err)
	}
	return &Renderer{cache: cache, template: templateText}, nil
}

// Render returns the substituted script bytes for company/pixel/domain,
// serving from cache when available.
func (r *Renderer) Render(company, pixel, domain string) ([]byte, error) {
	key := company + "/" + pixel + "/" + domain
	if body, ok := r.cache.Get(key); ok {
		return body, nil
	}

	replacer := strings.NewReplacer(
		"{{COMPANY}}", company,
		"{{PIXEL}}", pixel,
		"{{DOMAIN}}", domain,
	)
	body := []byte(replacer.Replace(r.template))
	r.cache.Add(key, body)
	return body, nil
}

// DefaultTemplate is the fingerprint-collector script shipped with the
// distribution. Deployments may override it via configuration.
const DefaultTemplate = `(function(){
  var c="{{COMPANY}}",p="{{PIXEL}}",d="{{DOMAIN}}";
  var params=[];
  try{
    var canvas=document.createElement("canvas");
    var ctx=canvas.getContext("2d");
    if(ctx){
      ctx.textBaseline="top";
      ctx.font="14px Arial";
      ctx.fillText("sp",2,2);
      params.push("canvasFP="+encodeURIComponent(canvas.toDataURL()));
    }
  }catch(e){}
  try{
    params.push("tz="+encodeURIComponent(Intl.DateTimeFormat().resolvedOptions().timeZone));
  }catch(e){}
  if("serviceWorker" in navigator){ params.push("sw=1"); }
  var img=new Image();
  img.src="/"+c+"/"+p+"_"+d+"_SMART.GIF?"+params.join("&");
})();
`
