package assets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/rootsig/engine/assets/loaders"
	"github.com/spaghettifunk/rootsig/engine/containers"
	"github.com/spaghettifunk/rootsig/engine/core"
	"github.com/spaghettifunk/rootsig/engine/renderer/dx12"
	"github.com/spaghettifunk/rootsig/engine/renderer/metadata"
)

// Number of reload failures kept for inspection.
const reloadErrorHistory = 32

var ErrLibraryClosed = errors.New("shader library already closed")

type AssetInfo struct {
	Path       string
	Type       metadata.ResourceType
	LastLoaded time.Time
	// Names of the shaders the file produced.
	Shaders []string
}

/**
 * @brief Reflects shader binding files and keeps the results by name. With
 * Watch the library follows a directory tree and re-reflects files when they
 * change; a file that fails to reload keeps its previous shaders.
 */
type ShaderLibrary struct {
	opts    dx12.ReflectOptions
	loaders map[metadata.ResourceType]Loader

	mutex   sync.RWMutex
	assets  map[string]AssetInfo
	shaders map[string]*dx12.Shader
	errors  *containers.RingQueue[error]

	fsnotify *fsnotify.Watcher
	done     chan struct{}
	stopped  chan struct{}
	isClosed bool

	// Called after a file was reflected again, with the affected shader names.
	OnReload func(names []string)
}

func NewShaderLibrary(opts dx12.ReflectOptions) *ShaderLibrary {
	sl := &ShaderLibrary{
		opts:    opts,
		loaders: make(map[metadata.ResourceType]Loader),
		assets:  make(map[string]AssetInfo),
		shaders: make(map[string]*dx12.Shader),
		errors:  containers.NewRingQueue[error](reloadErrorHistory),
	}
	sl.RegisterLoader(metadata.ResourceTypeShaderManifest, &loaders.ManifestLoader{})
	sl.RegisterLoader(metadata.ResourceTypeShaderSource, &loaders.WGSLLoader{})
	return sl
}

// RegisterLoader replaces the loader used for a resource type.
func (sl *ShaderLibrary) RegisterLoader(assetType metadata.ResourceType, loader Loader) {
	sl.mutex.Lock()
	defer sl.mutex.Unlock()
	sl.loaders[assetType] = loader
}

// LoadFile reflects every shader in the file and registers them by name.
func (sl *ShaderLibrary) LoadFile(path string) ([]*dx12.Shader, error) {
	assetType := metadata.ResourceTypeForPath(path)
	if assetType == metadata.ResourceTypeNone {
		return nil, fmt.Errorf("func LoadFile: %s is not a shader binding file", path)
	}

	sl.mutex.RLock()
	loader, ok := sl.loaders[assetType]
	sl.mutex.RUnlock()
	if !ok {
		return nil, fmt.Errorf("func LoadFile: no loader registered for %s files", assetType)
	}

	res, err := loader.Load(path)
	if err != nil {
		return nil, err
	}

	shaders := make([]*dx12.Shader, 0, len(res.Shaders))
	names := make([]string, 0, len(res.Shaders))
	for _, desc := range res.Shaders {
		s, err := dx12.Reflect(desc, sl.opts)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		shaders = append(shaders, s)
		names = append(names, s.Name)
	}

	sl.mutex.Lock()
	defer sl.mutex.Unlock()
	for _, s := range shaders {
		if owner := sl.ownerOf(s.Name); owner != "" && owner != path {
			return nil, fmt.Errorf("func LoadFile: shader '%s' from %s is already defined by %s", s.Name, path, owner)
		}
	}
	// Shaders dropped from the file since the last load disappear too.
	for _, old := range sl.assets[path].Shaders {
		delete(sl.shaders, old)
	}
	for _, s := range shaders {
		sl.shaders[s.Name] = s
	}
	sl.assets[path] = AssetInfo{
		Path:       path,
		Type:       assetType,
		LastLoaded: time.Now(),
		Shaders:    names,
	}
	core.LogDebug("reflected %d shader(s) from %s", len(shaders), path)
	return shaders, nil
}

func (sl *ShaderLibrary) ownerOf(name string) string {
	for path, info := range sl.assets {
		for _, n := range info.Shaders {
			if n == name {
				return path
			}
		}
	}
	return ""
}

// LoadDir loads every shader binding file below dir. All files are attempted;
// the returned error joins the failures.
func (sl *ShaderLibrary) LoadDir(dir string) error {
	var errs []error
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || metadata.ResourceTypeForPath(path) == metadata.ResourceTypeNone {
			return nil
		}
		if _, err := sl.LoadFile(path); err != nil {
			errs = append(errs, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return errors.Join(errs...)
}

func (sl *ShaderLibrary) Get(name string) (*dx12.Shader, bool) {
	sl.mutex.RLock()
	defer sl.mutex.RUnlock()
	s, ok := sl.shaders[name]
	return s, ok
}

// Names returns the registered shader names in sorted order.
func (sl *ShaderLibrary) Names() []string {
	sl.mutex.RLock()
	defer sl.mutex.RUnlock()
	names := make([]string, 0, len(sl.shaders))
	for n := range sl.shaders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (sl *ShaderLibrary) Asset(path string) (AssetInfo, bool) {
	sl.mutex.RLock()
	defer sl.mutex.RUnlock()
	info, ok := sl.assets[path]
	return info, ok
}

// ReloadErrors returns the most recent reload failures, oldest first.
func (sl *ShaderLibrary) ReloadErrors() []error {
	sl.mutex.RLock()
	defer sl.mutex.RUnlock()
	return sl.errors.Items()
}

// Watch loads dir and then follows it, including sub-directories created
// later, until Close.
func (sl *ShaderLibrary) Watch(dir string) error {
	sl.mutex.Lock()
	if sl.isClosed {
		sl.mutex.Unlock()
		return ErrLibraryClosed
	}
	if sl.fsnotify != nil {
		sl.mutex.Unlock()
		return errors.New("func Watch: shader library is already watching")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		sl.mutex.Unlock()
		return err
	}
	sl.fsnotify = w
	sl.done = make(chan struct{})
	sl.stopped = make(chan struct{})
	sl.mutex.Unlock()

	if err := sl.watchRecursive(dir); err != nil {
		sl.mutex.Lock()
		sl.fsnotify, sl.done, sl.stopped = nil, nil, nil
		sl.mutex.Unlock()
		return errors.Join(fmt.Errorf("func Watch: %w", err), w.Close())
	}
	go sl.start()

	if err := sl.LoadDir(dir); err != nil {
		core.LogWarn("initial load of %s: %s", dir, err)
		sl.recordError(err)
	}
	return nil
}

// Close stops watching. The loaded shaders stay available.
func (sl *ShaderLibrary) Close() error {
	sl.mutex.Lock()
	if sl.isClosed {
		sl.mutex.Unlock()
		return nil
	}
	sl.isClosed = true
	watching := sl.fsnotify != nil
	sl.mutex.Unlock()

	if !watching {
		return nil
	}
	close(sl.done)
	<-sl.stopped
	return sl.fsnotify.Close()
}

func (sl *ShaderLibrary) start() {
	defer close(sl.stopped)
	for {
		select {
		case e, ok := <-sl.fsnotify.Events:
			if !ok {
				return
			}
			sl.handleEvent(e)

		case err, ok := <-sl.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("%s", err)
			sl.recordError(err)

		case <-sl.done:
			return
		}
	}
}

func (sl *ShaderLibrary) handleEvent(e fsnotify.Event) {
	if e.Op&fsnotify.Create != 0 {
		if s, err := os.Stat(e.Name); err == nil && s.IsDir() {
			if err := sl.watchRecursive(e.Name); err != nil {
				sl.recordError(err)
			}
			return
		}
	}

	if metadata.ResourceTypeForPath(e.Name) == metadata.ResourceTypeNone {
		return
	}

	switch {
	case e.Op&(fsnotify.Create|fsnotify.Write) != 0:
		shaders, err := sl.LoadFile(e.Name)
		if err != nil {
			core.LogError("reload failed, keeping previous shaders: %s", err)
			sl.recordError(err)
			return
		}
		names := make([]string, len(shaders))
		for i, s := range shaders {
			names[i] = s.Name
		}
		core.LogInfo("reloaded %s", e.Name)
		if sl.OnReload != nil {
			sl.OnReload(names)
		}
	case e.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		names := sl.removeAsset(e.Name)
		if len(names) > 0 && sl.OnReload != nil {
			sl.OnReload(names)
		}
	}
}

func (sl *ShaderLibrary) recordError(err error) {
	sl.mutex.Lock()
	defer sl.mutex.Unlock()
	sl.errors.Push(err)
}

// watchRecursive adds dir and all directories under it to the watch list.
func (sl *ShaderLibrary) watchRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return sl.fsnotify.Add(path)
		}
		return nil
	})
}

// Remove the shaders of a deleted file and return their names.
func (sl *ShaderLibrary) removeAsset(path string) []string {
	sl.mutex.Lock()
	defer sl.mutex.Unlock()

	info, ok := sl.assets[path]
	if !ok {
		return nil
	}
	for _, n := range info.Shaders {
		delete(sl.shaders, n)
	}
	delete(sl.assets, path)
	core.LogInfo("removed %d shader(s) of %s", len(info.Shaders), path)
	return info.Shaders
}
