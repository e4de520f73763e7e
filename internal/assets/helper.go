package assets

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

const serviceWorkerHelper = "serviceWorkerHelper.js"

// hashPattern matches bundler content hashes; shorter hex runs such as
// "a-face.css" are ordinary words.
var hashPattern = regexp.MustCompile(`-([0-9a-f]{8,})\.[^/]*$`)

// Options configures a Helper. ReadFile defaults to os.ReadFile and PublicDir
// to "public".
type Options struct {
	AssetHost string
	PublicDir string
	ReadFile  func(name string) ([]byte, error)
}

// Chunk lists the files a page bundle needs. CSSPath/CSSContent are nil when
// the chunk has no stylesheet.
type Chunk struct {
	CSSPath    *string  `json:"cssPath"`
	CSSContent *string  `json:"cssContent"`
	JSPaths    []string `json:"jsPaths"`
}

// Helper answers asset questions against one manifest.
type Helper struct {
	host      string
	publicDir string
	readFile  func(string) ([]byte, error)
	manifest  *Manifest

	// contents memoizes asset bodies by logical name for the process lifetime.
	contents sync.Map
}

// NewHelper wires a manifest with CDN and disk settings.
func NewHelper(manifest *Manifest, opts Options) *Helper {
	if opts.PublicDir == "" {
		opts.PublicDir = "public"
	}
	if opts.ReadFile == nil {
		opts.ReadFile = os.ReadFile
	}
	if manifest == nil {
		manifest = NewManifest()
	}
	return &Helper{
		host:      opts.AssetHost,
		publicDir: opts.PublicDir,
		readFile:  opts.ReadFile,
		manifest:  manifest,
	}
}

// AssetPath returns the CDN-prefixed path of a logical asset.
func (h *Helper) AssetPath(name string) (string, bool) {
	return h.AssetPathWithHost(name, h.host)
}

// AssetPathWithHost is AssetPath with an explicit host prefix; an empty host
// yields the bare manifest path.
func (h *Helper) AssetPathWithHost(name, host string) (string, bool) {
	path, ok := h.manifest.Lookup(name)
	if !ok {
		return "", false
	}
	return host + path, true
}

// AssetHash returns the content hash embedded in the asset's file name, "1"
// when the file name carries no hash, and false when the asset is unknown.
func (h *Helper) AssetHash(name string) (string, bool) {
	path, ok := h.manifest.Lookup(name)
	if !ok {
		return "", false
	}
	if match := hashPattern.FindStringSubmatch(path); match != nil {
		return match[1], true
	}
	return "1", true
}

// ReadAsset returns the body of a logical asset read from the public dir.
// Successful reads are memoized; concurrent first reads may both hit the disk
// and the first stored value wins.
func (h *Helper) ReadAsset(name string) (string, bool) {
	if cached, ok := h.contents.Load(name); ok {
		return cached.(string), true
	}
	path, ok := h.manifest.Lookup(name)
	if !ok {
		return "", false
	}
	raw, err := h.readFile(filepath.Join(h.publicDir, path))
	if err != nil {
		return "", false
	}
	actual, _ := h.contents.LoadOrStore(name, string(raw))
	return actual.(string), true
}

// ServiceWorkerContents returns the service worker helper script body.
func (h *Helper) ServiceWorkerContents() (string, bool) {
	return h.ReadAsset(serviceWorkerHelper)
}

// AssetFiles returns the set of hashed paths, without host prefix.
func (h *Helper) AssetFiles() map[string]struct{} {
	files := make(map[string]struct{}, h.manifest.Len())
	for _, e := range h.manifest.Entries() {
		files[e.Path] = struct{}{}
	}
	return files
}

// GetChunk resolves the stylesheet and ordered script list of a named chunk.
// Scripts are "<chunk>.js" plus split vendor bundles ("vendors~<chunk>.js",
// "vendors~<chunk>~<other>.js"), in manifest order.
func (h *Helper) GetChunk(name string) Chunk {
	chunk := Chunk{JSPaths: []string{}}
	if cssPath, ok := h.AssetPath(name + ".css"); ok {
		chunk.CSSPath = &cssPath
	}
	if content, ok := h.ReadAsset(name + ".css"); ok {
		chunk.CSSContent = &content
	}
	for _, e := range h.manifest.Entries() {
		if belongsToChunk(e.Name, name) {
			chunk.JSPaths = append(chunk.JSPaths, h.host+e.Path)
		}
	}
	return chunk
}

func belongsToChunk(key, chunk string) bool {
	if !strings.HasSuffix(key, ".js") {
		return false
	}
	if key == chunk+".js" {
		return true
	}
	rest, ok := strings.CutPrefix(key, "vendors~"+chunk)
	if !ok {
		return false
	}
	return rest == ".js" || strings.HasPrefix(rest, "~")
}
