package pipeline

import (
	"context"
	"sync"

	"feedscope-go/pkg/log"
	"feedscope-go/pkg/tasks"
)

// TaskProcessor 抽象了索引任务的实际执行者，Processor 是其生产实现。
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.ArticleIndexTask) error
}

// Result 是单个索引任务的完成回执。失败不会自动重试，
// 重试策略由调用方决定。
type Result struct {
	Success bool
	Err     error
}

// job 是队列中的一项工作。
type job struct {
	task       tasks.ArticleIndexTask
	onComplete func(Result)
}

// Queue 串行化所有向量写操作：单个 draining goroutine 逐条执行任务，
// 因此同一用户（乃至全局）的写入永远不会并发打到向量后端，
// 并发的管线阶段也就不可能在同一集合上竞争。
type Queue struct {
	processor TaskProcessor
	jobs      chan job

	closeOnce sync.Once
	done      chan struct{}
}

// NewQueue 创建并启动一个索引队列。
func NewQueue(processor TaskProcessor, buffer int) *Queue {
	if buffer <= 0 {
		buffer = 256
	}
	q := &Queue{
		processor: processor,
		jobs:      make(chan job, buffer),
		done:      make(chan struct{}),
	}
	go q.drain()
	return q
}

// IndexArticle 把一次索引请求排入队列。onComplete 可以为 nil。
func (q *Queue) IndexArticle(articleID, userID uint, onComplete func(Result)) {
	q.enqueue(tasks.ArticleIndexTask{ArticleID: articleID, UserID: userID, Op: tasks.OpIndex}, onComplete)
}

// DeleteArticle 把一次删除请求排入队列。
func (q *Queue) DeleteArticle(articleID, userID uint) {
	q.enqueue(tasks.ArticleIndexTask{ArticleID: articleID, UserID: userID, Op: tasks.OpDelete}, nil)
}

// Enqueue 排入一个已构造好的任务，供 Kafka 消费侧复用。
func (q *Queue) Enqueue(task tasks.ArticleIndexTask, onComplete func(Result)) {
	q.enqueue(task, onComplete)
}

func (q *Queue) enqueue(task tasks.ArticleIndexTask, onComplete func(Result)) {
	select {
	case <-q.done:
		if onComplete != nil {
			onComplete(Result{Success: false, Err: context.Canceled})
		}
	default:
		q.jobs <- job{task: task, onComplete: onComplete}
	}
}

// drain 是队列的唯一工作协程。任务一旦开始便运行到成功或失败，
// 不携带取消令牌；单个坏任务只记回执，不会停掉队列。
func (q *Queue) drain() {
	for {
		select {
		case <-q.done:
			return
		case item := <-q.jobs:
			err := q.processor.Process(context.Background(), item.task)
			if err != nil {
				log.Errorf("[IndexQueue] 任务执行失败, ArticleID: %d, UserID: %d, Op: %s, Error: %v",
					item.task.ArticleID, item.task.UserID, item.task.Op, err)
			}
			if item.onComplete != nil {
				item.onComplete(Result{Success: err == nil, Err: err})
			}
		}
	}
}

// Process 排入任务并阻塞等待其完成，供 Kafka 消费侧同步处理。
// 串行化仍由队列的工作协程保证。
func (q *Queue) Process(ctx context.Context, task tasks.ArticleIndexTask) error {
	done := make(chan Result, 1)
	q.enqueue(task, func(r Result) { done <- r })
	select {
	case r := <-done:
		return r.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close 停止队列。已排队但未开始的任务被丢弃。
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.done)
	})
}
