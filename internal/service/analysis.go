package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"medifusion-go/internal/model"
	"medifusion-go/pkg/apiclient"
	"medifusion-go/pkg/log"
	"medifusion-go/pkg/store"
	"medifusion-go/pkg/tasks"
)

// DiagnosisCacheKey 是最近一次诊断结果在客户端 KV 中的键名。
const DiagnosisCacheKey = "diagnosisResult"

const (
	msgSubmitFailed = "Failed to submit symptoms"
	msgTaskFailed   = "Task failed. Please try again."
	msgTimedOut     = "Analysis timed out. Please try again."
)

var (
	// ErrEmptySymptoms 表示症状文本去除空白后为空。
	ErrEmptySymptoms = errors.New("Please enter at least one symptom")
	// ErrNoDiagnosis 表示客户端没有可用的缓存诊断。
	ErrNoDiagnosis = errors.New("no diagnosis available")
	// ErrWorkflowClosed 表示工作流已卸载，不再接受提交。
	ErrWorkflowClosed = errors.New("analysis workflow closed")
)

// AnalysisState 是分析工作流的状态。
type AnalysisState string

const (
	StateIdle       AnalysisState = "idle"
	StateSubmitting AnalysisState = "submitting"
	StateProcessing AnalysisState = "processing"
	StateSuccess    AnalysisState = "success"
	StateFailure    AnalysisState = "failure"
)

// Snapshot 是工作流某一时刻的只读状态。
type Snapshot struct {
	State     AnalysisState        `json:"state"`
	TaskID    string               `json:"task_id,omitempty"`
	Attempts  int                  `json:"attempts"`
	Error     string               `json:"error,omitempty"`
	Diagnosis *model.Diagnosis     `json:"-"`
	View      *model.DiagnosisView `json:"result,omitempty"`
}

// Submission 是一次症状提交。
type Submission struct {
	Symptoms   string
	Attachment *model.Attachment
}

// AnalysisBackend 是工作流用到的后端接口，由 *apiclient.Client 实现。
type AnalysisBackend interface {
	SubmitAnalysis(ctx context.Context, symptoms string, att *model.Attachment) (*model.AnalysisJob, error)
	PollAnalysis(ctx context.Context, taskID string, p apiclient.PollParams) (*model.AnalysisJob, error)
}

// EventPublisher 接收终态事件，由 pkg/kafka 实现。
type EventPublisher interface {
	PublishAnalysis(ctx context.Context, ev tasks.AnalysisEvent) error
}

// PollOptions 控制轮询节奏。MaxAttempts 为 0 表示不限次数。
type PollOptions struct {
	Interval    time.Duration
	MaxAttempts int
	WaitSeconds int
}

const publishTimeout = 5 * time.Second

// Poller 是一个正在运行的轮询任务的句柄。
type Poller struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Cancel 停止轮询，并等待轮询 goroutine 退出后才返回。可重复调用。
func (p *Poller) Cancel() {
	p.cancel()
	<-p.done
}

// Done 在轮询 goroutine 退出后关闭。
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

// AnalysisWorkflow 驱动一次症状提交及其后续轮询：
// Idle → Submitting → Processing → {Success, Failure}。
// 每次提交或卸载都会递增 generation，携带旧 generation 的响应一律丢弃。
type AnalysisWorkflow struct {
	clientID string
	backend  AnalysisBackend
	kv       store.KV
	events   EventPublisher
	opts     PollOptions

	mu      sync.Mutex
	snap    Snapshot
	gen     uint64
	poller  *Poller
	closed  bool
	subs    map[int]func(Snapshot)
	nextSub int
	touched time.Time

	// notifyMu 保证订阅者按状态变化的顺序收到快照。
	notifyMu sync.Mutex
}

// NewAnalysisWorkflow 创建一个处于 Idle 状态的工作流。events 可为 nil。
func NewAnalysisWorkflow(clientID string, backend AnalysisBackend, kv store.KV, events EventPublisher, opts PollOptions) *AnalysisWorkflow {
	if opts.Interval <= 0 {
		opts.Interval = 2 * time.Second
	}
	return &AnalysisWorkflow{
		clientID: clientID,
		backend:  backend,
		kv:       kv,
		events:   events,
		opts:     opts,
		snap:     Snapshot{State: StateIdle},
		subs:     make(map[int]func(Snapshot)),
		touched:  time.Now(),
	}
}

// Snapshot 返回当前状态。
func (w *AnalysisWorkflow) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snap
}

// Subscribe 注册一个观察者，之后的每次状态变化都会回调 fn。
// fn 在工作流的 goroutine 中同步执行，不能调用 Submit、Cancel 或 Close。
// 返回的函数用于取消订阅。
func (w *AnalysisWorkflow) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	w.mu.Lock()
	id := w.nextSub
	w.nextSub++
	w.subs[id] = fn
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		delete(w.subs, id)
		w.mu.Unlock()
	}
}

// Submit 提交症状并启动轮询。
// 输入校验失败时返回错误且不发出任何请求；后端错误不作为 error 返回，
// 而是体现在 Failure 状态的 Error 字段中。
func (w *AnalysisWorkflow) Submit(ctx context.Context, sub Submission) (Snapshot, error) {
	text := strings.TrimSpace(sub.Symptoms)
	if text == "" {
		return w.Snapshot(), ErrEmptySymptoms
	}
	if sub.Attachment != nil {
		if err := sub.Attachment.Validate(); err != nil {
			return w.Snapshot(), err
		}
	}

	gen, err := w.supersede()
	if err != nil {
		return w.Snapshot(), err
	}
	w.update(gen, func(s *Snapshot) {
		*s = Snapshot{State: StateSubmitting}
	})

	job, err := w.backend.SubmitAnalysis(ctx, text, sub.Attachment)
	if err != nil {
		log.Errorf("[AnalysisWorkflow] 提交症状失败, client: %s, error: %v", w.clientID, err)
		w.fail(gen, "", apiclient.Message(err, msgSubmitFailed), 0)
		return w.Snapshot(), nil
	}

	switch {
	case job.Status == model.TaskSuccess:
		d, ok := job.Diagnosis()
		if !ok {
			log.Warnf("[AnalysisWorkflow] 任务成功但结果无法解析, client: %s, result: %s", w.clientID, job.Result)
			w.fail(gen, job.TaskID, msgTaskFailed, 0)
			break
		}
		w.succeed(ctx, gen, job.TaskID, job.ConsultationID, d, 0)
	case job.Status == model.TaskFailure:
		w.fail(gen, job.TaskID, failureText(job, msgSubmitFailed), 0)
	case job.TaskID == "":
		w.fail(gen, "", msgSubmitFailed, 0)
	default:
		log.Infof("[AnalysisWorkflow] 任务已提交, client: %s, task: %s", w.clientID, job.TaskID)
		if w.update(gen, func(s *Snapshot) {
			*s = Snapshot{State: StateProcessing, TaskID: job.TaskID}
		}) {
			w.startPoller(gen, job.TaskID, job.ConsultationID)
		}
	}
	return w.Snapshot(), nil
}

// Cancel 停止当前轮询并回到 Idle，工作流仍可继续使用。
func (w *AnalysisWorkflow) Cancel() {
	gen, err := w.supersede()
	if err != nil {
		return
	}
	w.update(gen, func(s *Snapshot) {
		*s = Snapshot{State: StateIdle}
	})
}

// Close 卸载工作流：停止轮询并等待其退出。之后不会再发出任何请求。
func (w *AnalysisWorkflow) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.gen++
	p := w.poller
	w.poller = nil
	w.mu.Unlock()

	if p != nil {
		p.Cancel()
	}
}

// LastDiagnosis 读取缓存的最近一次诊断。缓存内容无法解析时删除该条目。
func (w *AnalysisWorkflow) LastDiagnosis(ctx context.Context) (*model.Diagnosis, error) {
	return LoadCachedDiagnosis(ctx, w.kv)
}

// LoadCachedDiagnosis 从 kv 中读取缓存的诊断结果。
func LoadCachedDiagnosis(ctx context.Context, kv store.KV) (*model.Diagnosis, error) {
	raw, ok, err := kv.Get(ctx, DiagnosisCacheKey)
	if err != nil {
		return nil, err
	}
	if !ok || raw == "" {
		return nil, ErrNoDiagnosis
	}
	var d model.Diagnosis
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		log.Warnf("缓存的诊断结果无法解析，已删除: %v", err)
		if delErr := kv.Delete(ctx, DiagnosisCacheKey); delErr != nil {
			log.Errorf("删除损坏的诊断缓存失败: %v", delErr)
		}
		return nil, ErrNoDiagnosis
	}
	return &d, nil
}

// idleSince 返回最后一次状态变化的时间；提交或轮询进行中时 ok 为 false。
func (w *AnalysisWorkflow) idleSince() (time.Time, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.snap.State == StateSubmitting || w.snap.State == StateProcessing {
		return time.Time{}, false
	}
	return w.touched, true
}

// supersede 使当前 generation 失效，并在不持锁的情况下等待旧的轮询退出。
func (w *AnalysisWorkflow) supersede() (uint64, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return 0, ErrWorkflowClosed
	}
	w.gen++
	gen := w.gen
	old := w.poller
	w.poller = nil
	w.mu.Unlock()

	if old != nil {
		old.Cancel()
	}
	return gen, nil
}

// update 在 gen 仍为当前 generation 时修改快照并通知订阅者。
func (w *AnalysisWorkflow) update(gen uint64, fn func(*Snapshot)) bool {
	w.mu.Lock()
	if gen != w.gen || w.closed {
		w.mu.Unlock()
		return false
	}
	fn(&w.snap)
	w.touched = time.Now()
	snap := w.snap
	subs := make([]func(Snapshot), 0, len(w.subs))
	for _, s := range w.subs {
		subs = append(subs, s)
	}
	w.notifyMu.Lock()
	w.mu.Unlock()

	for _, s := range subs {
		s(snap)
	}
	w.notifyMu.Unlock()
	return true
}

func (w *AnalysisWorkflow) startPoller(gen uint64, taskID string, cid model.ConsultationID) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Poller{cancel: cancel, done: make(chan struct{})}

	w.mu.Lock()
	if gen != w.gen || w.closed {
		w.mu.Unlock()
		cancel()
		return
	}
	w.poller = p
	w.mu.Unlock()

	go w.poll(ctx, p, gen, taskID, cid)
}

// poll 每隔 Interval 查询一次任务状态。一次只有一个请求在途，慢请求会推迟下一次查询。
func (w *AnalysisWorkflow) poll(ctx context.Context, p *Poller, gen uint64, taskID string, cid model.ConsultationID) {
	defer close(p.done)
	defer p.cancel()

	params := apiclient.PollParams{ConsultationID: cid, WaitSeconds: w.opts.WaitSeconds}
	timer := time.NewTimer(w.opts.Interval)
	defer timer.Stop()

	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		attempts++
		job, err := w.backend.PollAnalysis(ctx, taskID, params)
		if ctx.Err() != nil {
			return
		}

		if err != nil {
			log.Warnf("[AnalysisWorkflow] 轮询任务失败, 下次继续, task: %s, attempt: %d, error: %v", taskID, attempts, err)
		} else {
			switch job.Status {
			case model.TaskSuccess:
				d, ok := job.Diagnosis()
				if !ok {
					log.Warnf("[AnalysisWorkflow] 任务成功但结果无法解析, task: %s, result: %s", taskID, job.Result)
					w.fail(gen, taskID, msgTaskFailed, attempts)
					return
				}
				w.succeed(ctx, gen, taskID, cid, d, attempts)
				return
			case model.TaskFailure:
				log.Warnf("[AnalysisWorkflow] 任务失败, task: %s, error: %s", taskID, job.Error)
				w.fail(gen, taskID, msgTaskFailed, attempts)
				return
			default:
				n := attempts
				w.update(gen, func(s *Snapshot) {
					s.TaskID = taskID
					s.Attempts = n
				})
			}
		}

		if w.opts.MaxAttempts > 0 && attempts >= w.opts.MaxAttempts {
			log.Warnf("[AnalysisWorkflow] 轮询次数耗尽, task: %s, attempts: %d", taskID, attempts)
			w.fail(gen, taskID, msgTimedOut, attempts)
			return
		}
		timer.Reset(w.opts.Interval)
	}
}

func (w *AnalysisWorkflow) succeed(ctx context.Context, gen uint64, taskID string, cid model.ConsultationID, d *model.Diagnosis, attempts int) {
	w.mu.Lock()
	stale := gen != w.gen || w.closed
	w.mu.Unlock()
	if stale {
		return
	}

	if payload, err := json.Marshal(d); err != nil {
		log.Errorf("[AnalysisWorkflow] 序列化诊断结果失败: %v", err)
	} else if err := w.kv.Set(ctx, DiagnosisCacheKey, string(payload)); err != nil {
		log.Errorf("[AnalysisWorkflow] 缓存诊断结果失败, client: %s, error: %v", w.clientID, err)
	}

	view := model.RenderDiagnosis(*d)
	if !w.update(gen, func(s *Snapshot) {
		*s = Snapshot{State: StateSuccess, TaskID: taskID, Attempts: attempts, Diagnosis: d, View: &view}
	}) {
		return
	}

	ev := tasks.AnalysisEvent{
		ClientID:       w.clientID,
		TaskID:         taskID,
		ConsultationID: string(cid),
		Status:         string(model.TaskSuccess),
		Summary:        d.Summary,
		Specialist:     view.Specialist,
		Attempts:       attempts,
		OccurredAt:     time.Now(),
	}
	if len(d.Conditions) > 0 {
		ev.TopCondition = d.Conditions[0].Name
	}
	w.publish(ev)
}

func (w *AnalysisWorkflow) fail(gen uint64, taskID, msg string, attempts int) {
	if !w.update(gen, func(s *Snapshot) {
		*s = Snapshot{State: StateFailure, TaskID: taskID, Attempts: attempts, Error: msg}
	}) {
		return
	}
	w.publish(tasks.AnalysisEvent{
		ClientID:   w.clientID,
		TaskID:     taskID,
		Status:     string(model.TaskFailure),
		Error:      msg,
		Attempts:   attempts,
		OccurredAt: time.Now(),
	})
}

func (w *AnalysisWorkflow) publish(ev tasks.AnalysisEvent) {
	if w.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := w.events.PublishAnalysis(ctx, ev); err != nil {
		log.Errorf("[AnalysisWorkflow] 发布分析事件失败, task: %s, error: %v", ev.TaskID, err)
	}
}

func failureText(job *model.AnalysisJob, fallback string) string {
	if job.Error != "" {
		return job.Error
	}
	if job.Message != "" {
		return job.Message
	}
	return fallback
}

// AnalysisRegistry 管理浏览器客户端的工作流，分两类：
//   - 共享工作流：每个客户端一个，供 REST 接口使用（Get/Peek/Release）；
//   - 挂载工作流：每个 /predict 连接一个（Mount），连接断开只关闭它自己。
type AnalysisRegistry struct {
	newWorkflow func(clientID string) *AnalysisWorkflow

	mu        sync.Mutex
	workflows map[string]*AnalysisWorkflow
	mounts    map[string]map[*AnalysisWorkflow]struct{}
}

// NewAnalysisRegistry 创建一个 AnalysisRegistry，factory 负责为新客户端构造工作流。
func NewAnalysisRegistry(factory func(clientID string) *AnalysisWorkflow) *AnalysisRegistry {
	return &AnalysisRegistry{
		newWorkflow: factory,
		workflows:   make(map[string]*AnalysisWorkflow),
		mounts:      make(map[string]map[*AnalysisWorkflow]struct{}),
	}
}

// Get 返回 clientID 的共享工作流，不存在时创建。只应在提交时调用。
func (r *AnalysisRegistry) Get(clientID string) *AnalysisWorkflow {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.workflows[clientID]; ok {
		// 刷新空闲时间，避免刚取出的工作流被 EvictIdle 关闭
		w.mu.Lock()
		w.touched = time.Now()
		w.mu.Unlock()
		return w
	}
	w := r.newWorkflow(clientID)
	r.workflows[clientID] = w
	return w
}

// Peek 返回 clientID 的共享工作流，不存在时不创建。
func (r *AnalysisRegistry) Peek(clientID string) (*AnalysisWorkflow, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workflows[clientID]
	return w, ok
}

// Release 卸载并移除 clientID 的共享工作流。挂载工作流不受影响。
func (r *AnalysisRegistry) Release(clientID string) {
	r.mu.Lock()
	w, ok := r.workflows[clientID]
	delete(r.workflows, clientID)
	r.mu.Unlock()
	if ok {
		w.Close()
	}
}

// Mount 为一次页面挂载创建独立的工作流。
// unmount 只关闭这一个工作流，同一客户端的其他连接继续工作。
func (r *AnalysisRegistry) Mount(clientID string) (w *AnalysisWorkflow, unmount func()) {
	w = r.newWorkflow(clientID)

	r.mu.Lock()
	set, ok := r.mounts[clientID]
	if !ok {
		set = make(map[*AnalysisWorkflow]struct{})
		r.mounts[clientID] = set
	}
	set[w] = struct{}{}
	r.mu.Unlock()

	var once sync.Once
	return w, func() {
		once.Do(func() {
			r.mu.Lock()
			if set, ok := r.mounts[clientID]; ok {
				delete(set, w)
				if len(set) == 0 {
					delete(r.mounts, clientID)
				}
			}
			r.mu.Unlock()
			w.Close()
		})
	}
}

// ReleaseClient 卸载 clientID 的所有工作流，用于退出登录。
func (r *AnalysisRegistry) ReleaseClient(clientID string) {
	r.mu.Lock()
	var all []*AnalysisWorkflow
	if w, ok := r.workflows[clientID]; ok {
		all = append(all, w)
		delete(r.workflows, clientID)
	}
	for w := range r.mounts[clientID] {
		all = append(all, w)
	}
	delete(r.mounts, clientID)
	r.mu.Unlock()

	for _, w := range all {
		w.Close()
	}
}

// EvictIdle 移除空闲超过 ttl 的共享工作流，返回移除的数量。
// 正在提交或轮询的工作流不会被移除；诊断结果已缓存在客户端 KV 中，不会丢失。
func (r *AnalysisRegistry) EvictIdle(ttl time.Duration) int {
	now := time.Now()
	r.mu.Lock()
	var stale []*AnalysisWorkflow
	for id, w := range r.workflows {
		if since, ok := w.idleSince(); ok && now.Sub(since) >= ttl {
			stale = append(stale, w)
			delete(r.workflows, id)
		}
	}
	r.mu.Unlock()

	for _, w := range stale {
		w.Close()
	}
	return len(stale)
}

// Len 返回当前跟踪的工作流数量（共享 + 挂载）。
func (r *AnalysisRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.workflows)
	for _, set := range r.mounts {
		n += len(set)
	}
	return n
}

// CloseAll 卸载所有工作流，用于服务关闭。
func (r *AnalysisRegistry) CloseAll() {
	r.mu.Lock()
	var all []*AnalysisWorkflow
	for _, w := range r.workflows {
		all = append(all, w)
	}
	for _, set := range r.mounts {
		for w := range set {
			all = append(all, w)
		}
	}
	r.workflows = make(map[string]*AnalysisWorkflow)
	r.mounts = make(map[string]map[*AnalysisWorkflow]struct{})
	r.mu.Unlock()

	for _, w := range all {
		w.Close()
	}
}
