package council

import (
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"k8s.io/klog/v2"
)

// fanOut 在本阶段独立的 ants 协程池中并发调用 call，等待全部结束后按输入顺序返回结果。
// 单个任务失败（含 panic、客户端已断开）通过 onFailure 转换为失败结果，不影响其他任务。
// onDone 在每个任务结束时于工作协程中调用，完成顺序即上报顺序。
func fanOut[T any](
	r *run,
	stage string,
	models []string,
	call func(model string) T,
	onFailure func(model string, err error) T,
	onDone func(T),
) []T {
	results := make([]T, len(models))

	pool, err := ants.NewPool(r.council.opts.PoolSize,
		ants.WithNonblocking(false),
		ants.WithExpiryDuration(time.Minute),
	)
	if err != nil {
		klog.Errorf("Council.%s: ants pool initialization failed: %v", stage, err)
		for i, model := range models {
			results[i] = onFailure(model, err)
			onDone(results[i])
		}
		return results
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i, model := range models {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			res := runTask(r, stage, model, call, onFailure)
			results[i] = res
			onDone(res)
		}
		if err := pool.Submit(task); err != nil {
			klog.Errorf("Council.%s: submit to pool failed: model=%s, err=%v", stage, model, err)
			results[i] = onFailure(model, err)
			onDone(results[i])
			wg.Done()
		}
	}
	wg.Wait()
	return results
}

func runTask[T any](r *run, stage, model string, call func(model string) T, onFailure func(model string, err error) T) (res T) {
	defer func() {
		if rec := recover(); rec != nil {
			klog.Errorf("Council.%s: task panic recovered: model=%s, err=%v", stage, model, rec)
			res = onFailure(model, fmt.Errorf("panic: %v", rec))
		}
	}()
	// 客户端已断开时不再发起新的调用，已在途的调用照常完成
	if err := r.clientCtx.Err(); err != nil {
		return onFailure(model, err)
	}
	return call(model)
}
