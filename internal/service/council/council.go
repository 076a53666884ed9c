package council

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/llmcouncil/backend/config"
	"github.com/llmcouncil/backend/internal/domain"
	"github.com/llmcouncil/backend/internal/eventstream"
	"github.com/llmcouncil/backend/internal/pkg/llm"
	"k8s.io/klog/v2"
)

var (
	ErrNoCouncilModels = errors.New("no council models selected")
	ErrNoChairman      = errors.New("no chairman model selected")
	ErrEmptyQuery      = errors.New("query is empty")
	ErrAllModelsFailed = errors.New("all models failed to respond")
	ErrChairmanFailed  = errors.New("chairman failed to synthesize a final answer")
)

// Options 编排参数
type Options struct {
	PoolSize    int
	Retry       llm.RetryPolicy
	CallTimeout time.Duration

	TurnTimeoutBase     time.Duration
	TurnTimeoutPerModel time.Duration
	TurnTimeoutMax      time.Duration

	PingInterval time.Duration
	TitleModel   string
}

// backoffMultiplier 每次重试的等待时间是上一次的 1.5 倍
const backoffMultiplier = 1.5

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		PoolSize: cfg.Council.PoolSize,
		Retry: llm.RetryPolicy{
			MaxAttempts: cfg.Council.MaxAttempts,
			Backoff: llm.BackoffPolicy{
				Base:       cfg.Council.BackoffBase,
				Max:        cfg.Council.BackoffMax,
				Multiplier: backoffMultiplier,
			},
		},
		CallTimeout:         cfg.LLM.CallTimeout,
		TurnTimeoutBase:     cfg.Council.TurnTimeoutBase,
		TurnTimeoutPerModel: cfg.Council.TurnTimeoutPerModel,
		TurnTimeoutMax:      cfg.Council.TurnTimeoutMax,
		PingInterval:        cfg.Council.PingInterval,
		TitleModel:          cfg.LLM.TitleModel,
	}
}

// TurnTimeout 整轮超时随议员数量增长，不超过 TurnTimeoutMax
func (o Options) TurnTimeout(models int) time.Duration {
	d := o.TurnTimeoutBase + time.Duration(models)*o.TurnTimeoutPerModel
	if o.TurnTimeoutMax > 0 && d > o.TurnTimeoutMax {
		d = o.TurnTimeoutMax
	}
	return d
}

// Council 三阶段编排器，本身无状态，每轮的状态都在 run 中
type Council struct {
	gateway llm.Gateway
	pricing PricingSource
	opts    Options
}

func New(gateway llm.Gateway, pricing PricingSource, opts Options) *Council {
	if opts.PoolSize <= 0 {
		opts.PoolSize = 4
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry.MaxAttempts = 1
	}
	return &Council{gateway: gateway, pricing: pricing, opts: opts}
}

// RunTurn 运行一轮议会，返回按顺序产生的事件流，以 complete 或 error 结束后关闭。
// ctx 取消后不再发送事件，已发出的模型调用继续执行直到结束。
func (c *Council) RunTurn(ctx context.Context, query domain.CouncilQuery, history []domain.ChatMessage) <-chan eventstream.Event {
	events := make(chan eventstream.Event, 16)
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.TurnTimeout(len(query.Models)))
	r := &run{
		council:     c,
		query:       query,
		history:     history,
		clientCtx:   ctx,
		callCtx:     callCtx,
		cancelCalls: cancel,
		events:      events,
		result:      &domain.TurnResult{},
	}
	go r.execute()
	return events
}

// run 单轮运行的上下文对象，轮次结束即丢弃
type run struct {
	council *Council
	query   domain.CouncilQuery
	history []domain.ChatMessage

	clientCtx   context.Context
	callCtx     context.Context
	cancelCalls context.CancelFunc

	events   chan<- eventstream.Event
	lastEmit atomic.Int64

	progress RunProgress
	labels   *LabelMap
	result   *domain.TurnResult
}

func (r *run) execute() {
	defer r.cancelCalls()
	stopPing := r.startPing()
	defer func() {
		stopPing()
		close(r.events)
	}()
	defer func() {
		if rec := recover(); rec != nil {
			klog.Errorf("Council.RunTurn: panic recovered: %v", rec)
			r.fail(fmt.Sprintf("internal error: %v", rec))
		}
	}()

	q := r.query
	switch {
	case len(q.Models) == 0:
		r.fail(ErrNoCouncilModels.Error())
		return
	case q.Chairman == "":
		r.fail(ErrNoChairman.Error())
		return
	case q.Query == "":
		r.fail(ErrEmptyQuery.Error())
		return
	}

	titleCh := r.startTitle()

	// Stage 1
	if !r.emit(eventstream.Stage1Start(q.Models)) {
		return
	}
	r.result.Stage1 = r.runStage1()
	if r.aborted() {
		return
	}
	if !r.emit(eventstream.Stage1Complete(r.result.Stage1)) {
		return
	}
	members := r.result.SuccessfulMembers()
	if len(members) == 0 {
		klog.Warningf("Council.stage1: all %d models failed", len(q.Models))
		r.fail(ErrAllModelsFailed.Error())
		return
	}

	// Stage 2
	r.result.Metadata = domain.TurnMetadata{
		LabelToModel:      map[string]string{},
		AggregateRankings: []domain.AggregateRanking{},
	}
	skipped := len(members) < 2
	if skipped {
		klog.V(6).Infof("Council.stage2: skipped, only %d successful response", len(members))
		r.result.Metadata.Stage2Skipped = true
	} else {
		if !r.emit(eventstream.Stage2Start(modelsOf(members))) {
			return
		}
		r.result.Stage2 = r.runStage2(members)
		if r.aborted() {
			return
		}
		r.result.Metadata.LabelToModel = r.labels.LabelToModel()
		r.result.Metadata.AggregateRankings = AggregateRankings(r.result.Stage2, r.labels, modelsOf(members))
		if !r.emit(eventstream.Stage2Complete(r.result.Stage2, r.result.Metadata)) {
			return
		}
	}

	// Stage 3
	if !r.emit(eventstream.Stage3Start(q.Chairman)) {
		return
	}
	chairman, err := r.runStage3(members, skipped)
	if r.aborted() {
		return
	}
	if err != nil {
		klog.Errorf("Council.stage3: %v", err)
		r.fail(err.Error())
		return
	}
	r.result.Stage3 = chairman
	if !r.emit(eventstream.Stage3Complete(*chairman)) {
		return
	}

	costs := ComputeCosts(r.result, r.pricing())
	r.result.Costs = &costs
	if !r.emit(eventstream.Costs(costs)) {
		return
	}

	if titleCh != nil {
		select {
		case title := <-titleCh:
			r.result.Title = title
			if !r.emit(eventstream.TitleComplete(title)) {
				return
			}
		case <-r.clientCtx.Done():
			return
		}
	}

	r.emit(eventstream.Complete(r.result))
}

func (r *run) runStage1() []domain.MemberResponse {
	models := r.query.Models
	total := len(models)
	r.progress.Stage1Total.Store(int32(total))

	return fanOut(r, "stage1", models,
		r.queryMember,
		func(model string, err error) domain.MemberResponse {
			return domain.MemberResponse{Model: model, Error: err.Error()}
		},
		func(res domain.MemberResponse) {
			completed := r.progress.Stage1Completed.Add(1)
			p := eventstream.Progress{Model: res.Model, Status: eventstream.StatusSuccess, Completed: int(completed), Total: total}
			if res.Failed() {
				p.Status = eventstream.StatusError
				p.Error = res.Error
			}
			r.emit(eventstream.Stage1Progress(p))
		},
	)
}

func (r *run) queryMember(model string) domain.MemberResponse {
	system := r.query.SystemPrompt
	if persona, ok := r.query.PersonaFor(model); ok {
		system = persona
	}
	resp, attempts, err := r.call(model, composeMessages(system, r.history, r.query.Query))
	if err != nil {
		klog.Warningf("Council.stage1: model=%s failed after %d attempt(s): %v", model, attempts, err)
		return domain.MemberResponse{Model: model, Error: err.Error()}
	}
	klog.V(6).Infof("Council.stage1: model=%s ok, attempts=%d, tokens=%d", model, attempts, resp.Usage.TotalTokens)
	return domain.MemberResponse{Model: model, Response: resp.Text, Usage: resp.Usage}
}

func (r *run) runStage2(members []domain.MemberResponse) []domain.RankingResult {
	models := modelsOf(members)
	total := len(models)
	r.labels = Assign(models)
	r.progress.Stage2Total.Store(int32(total))

	prompt := buildRankingPrompt(r.query.Query, anonymize(members, r.labels))
	messages := composeMessages(r.query.SystemPrompt, r.history, prompt)

	return fanOut(r, "stage2", models,
		func(model string) domain.RankingResult {
			return r.rank(model, messages)
		},
		func(model string, err error) domain.RankingResult {
			return domain.RankingResult{Model: model, Error: err.Error()}
		},
		func(res domain.RankingResult) {
			completed := r.progress.Stage2Completed.Add(1)
			p := eventstream.Progress{Model: res.Model, Status: eventstream.StatusSuccess, Completed: int(completed), Total: total}
			switch {
			case res.Error != "":
				p.Status = eventstream.StatusError
				p.Error = res.Error
			case res.ParseFailed:
				p.Status = eventstream.StatusParseFailed
			}
			r.emit(eventstream.Stage2Progress(p))
		},
	)
}

func (r *run) rank(model string, messages []domain.ChatMessage) domain.RankingResult {
	resp, attempts, err := r.call(model, messages)
	if err != nil {
		klog.Warningf("Council.stage2: model=%s failed after %d attempt(s): %v", model, attempts, err)
		return domain.RankingResult{Model: model, Error: err.Error()}
	}
	labels, ok := ParseRanking(resp.Text)
	if !ok {
		klog.Warningf("Council.stage2: model=%s returned no parsable FINAL RANKING section", model)
	}
	return domain.RankingResult{
		Model:         model,
		Ranking:       resp.Text,
		ParsedRanking: labels,
		ParseFailed:   !ok,
		Usage:         resp.Usage,
	}
}

func (r *run) runStage3(members []domain.MemberResponse, stage2Skipped bool) (*domain.ChairmanResult, error) {
	chairman := r.query.Chairman
	prompt := buildChairmanPrompt(r.query.Query, members, r.result.Stage2, stage2Skipped)

	r.progress.Stage3InProgress.Store(true)
	defer r.progress.Stage3InProgress.Store(false)

	resp, attempts, err := r.call(chairman, composeMessages(r.query.SystemPrompt, r.history, prompt))
	if err != nil {
		return nil, fmt.Errorf("%w (%s, %d attempt(s)): %v", ErrChairmanFailed, chairman, attempts, err)
	}
	return &domain.ChairmanResult{Model: chairman, Response: resp.Text, Usage: resp.Usage}, nil
}

func (r *run) call(model string, messages []domain.ChatMessage) (*llm.Response, int, error) {
	return llm.Attempt(r.callCtx, model, r.council.opts.Retry, func(ctx context.Context, attempt int) (*llm.Response, error) {
		if attempt > 1 {
			klog.V(6).Infof("Council: retrying model=%s, attempt=%d", model, attempt)
		}
		return r.council.gateway.Complete(ctx, llm.Request{
			Model:    model,
			Messages: messages,
			Timeout:  r.council.opts.CallTimeout,
		})
	})
}

func (r *run) pricing() map[string]domain.Pricing {
	if r.council.pricing == nil {
		return nil
	}
	return r.council.pricing.Pricing(r.callCtx)
}

func (r *run) startTitle() <-chan string {
	model := r.council.opts.TitleModel
	if !r.query.GenerateTitle || model == "" {
		return nil
	}
	ch := make(chan string, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				klog.Errorf("Council.title: panic recovered: %v", rec)
				ch <- DefaultTitle
			}
		}()
		ch <- GenerateTitle(r.callCtx, r.council.gateway, model, r.query.Query)
	}()
	return ch
}

// emit 发送一个事件；客户端已断开时返回 false
func (r *run) emit(ev eventstream.Event) bool {
	if r.aborted() {
		return false
	}
	select {
	case r.events <- ev:
		r.lastEmit.Store(time.Now().UnixNano())
		return true
	case <-r.clientCtx.Done():
		return false
	}
}

func (r *run) fail(message string) {
	r.emit(eventstream.Error(message, r.result))
}

func (r *run) aborted() bool {
	return r.clientCtx.Err() != nil
}

// startPing 在空闲超过 PingInterval 时发送保活事件，返回的函数停止并等待 ping 协程退出
func (r *run) startPing() func() {
	interval := r.council.opts.PingInterval
	if interval <= 0 {
		return func() {}
	}
	r.lastEmit.Store(time.Now().UnixNano())
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-r.clientCtx.Done():
				return
			case <-ticker.C:
				if time.Since(time.Unix(0, r.lastEmit.Load())) < interval {
					continue
				}
				select {
				case r.events <- eventstream.Ping():
					r.lastEmit.Store(time.Now().UnixNano())
				case <-stop:
					return
				case <-r.clientCtx.Done():
					return
				}
			}
		}
	}()
	return func() {
		close(stop)
		wg.Wait()
	}
}

func modelsOf(members []domain.MemberResponse) []string {
	out := make([]string, 0, len(members))
	for _, m := range members {
		out = append(out, m.Model)
	}
	return out
}
