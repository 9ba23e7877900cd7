// Copyright 2025 The packetd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rescue

import (
	"runtime"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/packetd/diamscope/common"
	"github.com/packetd/diamscope/logger"
)

var panicTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: common.App,
		Name:      "panic_total",
		Help:      "recovered panic total",
	},
	[]string{"scope"},
)

// PanicHandlers panic 被捕获后依次执行
var PanicHandlers = []func(scope string, r any){
	incPanicCounter,
	logPanic,
}

func incPanicCounter(scope string, _ any) {
	panicTotal.WithLabelValues(scope).Inc()
}

func logPanic(scope string, r any) {
	const size = 64 << 10
	stacktrace := make([]byte, size)
	stacktrace = stacktrace[:runtime.Stack(stacktrace, false)]
	if _, ok := r.(string); ok {
		logger.Errorf("Observed a panic in %s: %s\n%s", scope, r, stacktrace)
	} else {
		logger.Errorf("Observed a panic in %s: %#v (%v)\n%s", scope, r, r, stacktrace)
	}
}

// Call 执行 f 并将其中发生的 panic 转换为 error 返回
//
// 用于隔离外部扩展代码 保证 panic 不会跨越调用边界
func Call(scope string, f func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			for _, fn := range PanicHandlers {
				fn(scope, r)
			}
			err = errors.Errorf("%s: recovered from panic: %v", scope, r)
		}
	}()
	return f()
}
