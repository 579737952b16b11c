// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package responses drives the admin responses view: it loads pages through
// a read-through cache, filters and sorts them, keeps summary statistics,
// applies deletes, exports CSV and reloads when the change feed reports
// that the underlying tables changed.
package responses

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/cardinalhq/pulseboard/internal/boundedcache"
	"github.com/cardinalhq/pulseboard/internal/changefeed"
	"github.com/cardinalhq/pulseboard/internal/joinloader"
	"github.com/cardinalhq/pulseboard/internal/notify"
	"github.com/cardinalhq/pulseboard/internal/projection"
	"github.com/cardinalhq/pulseboard/internal/reconcile"
	"github.com/cardinalhq/pulseboard/internal/survey"
	"github.com/cardinalhq/pulseboard/surveydb"
)

const pageQuery = "responses.page"

const (
	DefaultCacheSize = 64
	DefaultCacheTTL  = 30 * time.Second
)

// Topics are the change topics a responses view watches.
var Topics = []string{surveydb.ProfilesTable, surveydb.SubmissionsTable}

// Store is the part of the remote store the controller uses.
type Store interface {
	surveydb.Reader
	surveydb.Deleter
}

// Deps are the collaborators a Controller is built from. Only Store is
// required.
type Deps struct {
	Store Store
	// Transport opens the change feed; nil disables live updates.
	Transport changefeed.Transport
	// Publisher announces successful deletes to other sessions.
	Publisher changefeed.Publisher
	Notifier  notify.Notifier
	// Cache may be passed in to share pages between controllers. By default
	// each controller gets its own.
	Cache *boundedcache.Cache[joinloader.Page]
}

type SubscriptionOptions struct {
	ChannelPrefix    string
	Retry            changefeed.RetryPolicy
	SubscribeTimeout time.Duration
}

type Options struct {
	PageSize     int
	CacheSize    int
	CacheTTL     time.Duration
	Reconcile    reconcile.Config
	Subscription SubscriptionOptions
}

func DefaultOptions() Options {
	return Options{
		PageSize:  joinloader.DefaultPageSize,
		CacheSize: DefaultCacheSize,
		CacheTTL:  DefaultCacheTTL,
		Reconcile: reconcile.Config{
			Debounce:    reconcile.DefaultDebounce,
			MinInterval: reconcile.DefaultMinInterval,
			Name:        "responses",
		},
		Subscription: SubscriptionOptions{
			ChannelPrefix:    "responses",
			Retry:            changefeed.DefaultRetryPolicy(),
			SubscribeTimeout: changefeed.DefaultSubscribeTimeout,
		},
	}
}

// Controller owns all state of one responses view. Its methods are safe
// for concurrent use.
type Controller struct {
	store     Store
	transport changefeed.Transport
	publisher changefeed.Publisher
	notifier  notify.Notifier
	opts      Options

	loader    *joinloader.Loader
	pages     *boundedcache.ReadThrough[joinloader.Page]
	memo      projection.Memo
	agg       survey.Aggregator
	scheduler *reconcile.Scheduler

	mu         sync.Mutex
	manager    *changefeed.Manager
	records    *survey.RecordSet
	window     joinloader.Window
	filter     projection.FilterSpec
	sort       projection.SortSpec
	selection  mapset.Set[uuid.UUID]
	gen        uint64
	epoch      uint64
	requested  int
	cancelLoad context.CancelFunc
	loading    bool
	stale      bool
	lastErr    error
	live       changefeed.State
	liveLost   bool
	active     bool
	started    bool
	closed     bool
}

func New(deps Deps, opts Options) (*Controller, error) {
	if deps.Store == nil {
		return nil, errors.New("responses: a store is required")
	}
	defaults := DefaultOptions()
	if opts.PageSize <= 0 {
		opts.PageSize = defaults.PageSize
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = defaults.CacheSize
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaults.CacheTTL
	}
	if opts.Reconcile.Name == "" {
		opts.Reconcile.Name = defaults.Reconcile.Name
	}
	if opts.Subscription.ChannelPrefix == "" {
		opts.Subscription.ChannelPrefix = defaults.Subscription.ChannelPrefix
	}
	if opts.Subscription.Retry == (changefeed.RetryPolicy{}) {
		opts.Subscription.Retry = defaults.Subscription.Retry
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.NewLogger(nil)
	}
	cache := deps.Cache
	if cache == nil {
		cache = boundedcache.New(opts.CacheSize,
			boundedcache.WithTTL[joinloader.Page](opts.CacheTTL),
			boundedcache.WithName[joinloader.Page]("responses"))
	}

	c := &Controller{
		store:     deps.Store,
		transport: deps.Transport,
		publisher: deps.Publisher,
		notifier:  deps.Notifier,
		opts:      opts,
		loader:    joinloader.New(deps.Store, opts.PageSize),
		pages:     boundedcache.NewReadThrough(cache),
		records:   survey.NewRecordSet(nil),
		window:    joinloader.NewWindow(0, opts.PageSize, 0),
		filter:    projection.DefaultFilter(),
		sort:      projection.DefaultSort(),
		selection: mapset.NewThreadUnsafeSet[uuid.UUID](),
		live:      changefeed.Disconnected,
	}
	c.scheduler = reconcile.New(opts.Reconcile, c.reconcile)
	return c, nil
}

// Start mounts the view: reconciliation is enabled and, when a transport
// is configured, the change feed subscription is opened. The first page
// is not loaded; call LoadPage.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.active = true
	if c.transport == nil {
		c.mu.Unlock()
		slog.Info("No change feed configured, live updates disabled")
		return nil
	}
	c.live = changefeed.Connecting
	c.manager = changefeed.NewManager(c.transport, changefeed.ManagerConfig{
		ChannelPrefix:    c.opts.Subscription.ChannelPrefix,
		Topics:           Topics,
		Retry:            c.opts.Subscription.Retry,
		SubscribeTimeout: c.opts.Subscription.SubscribeTimeout,
		OnEvent: func(ev changefeed.Event) {
			c.scheduler.OnChangeEvent(ev.Topic)
		},
		OnStateChange: c.setLive,
		OnExhausted: func(err error) {
			c.mu.Lock()
			c.liveLost = true
			c.mu.Unlock()
			c.notifier.Notify(context.Background(), notify.Notice{
				Level:   notify.LevelWarning,
				Op:      "subscribe",
				Message: "Live updates unavailable, the list will not refresh on its own",
				Err:     err,
				At:      time.Now(),
			})
		},
	})
	m := c.manager
	c.mu.Unlock()

	m.Start(ctx)
	return nil
}

func (c *Controller) setLive(s changefeed.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.live = s
}

// SetActive pauses or resumes reconciliation. While inactive, change
// notifications only invalidate cached pages.
func (c *Controller) SetActive(active bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.active = active
	if !active && c.scheduler.Cancel() {
		c.pages.Cache().DeleteFunc(boundedcache.QueryPrefix(pageQuery))
	}
}

// Close unmounts the view. Pending reloads, the in-flight load, background
// refreshes and the subscription are all cancelled before it returns.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.active = false
	c.gen++
	if c.cancelLoad != nil {
		c.cancelLoad()
		c.cancelLoad = nil
	}
	m := c.manager
	c.mu.Unlock()

	var errs *multierror.Error
	if m != nil {
		if err := m.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	c.scheduler.Close()
	c.pages.Close()
	return errs.ErrorOrNil()
}
