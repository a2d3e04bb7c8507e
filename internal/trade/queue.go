package trade

import "sync"

// Queue 是多生产者、单消费者的结果队列。
// 并发任务只做追加；汇总阶段在所有生产者结束后一次性取空。
type Queue struct {
	mu      sync.Mutex
	results []Result
}

// NewQueue 创建空队列。
func NewQueue() *Queue {
	return &Queue{}
}

// Push 追加一条结果，并发安全且不阻塞。
func (q *Queue) Push(result Result) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.results = append(q.results, result)
}

// Len 返回当前队列长度。
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.results)
}

// Drain 取出并清空全部结果。对空队列重复调用返回空切片。
func (q *Queue) Drain() []Result {
	q.mu.Lock()
	defer q.mu.Unlock()
	drained := q.results
	q.results = nil
	return drained
}
