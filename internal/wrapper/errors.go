// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package wrapper

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidDestination 路由目标不在 stage 注册表中
	ErrInvalidDestination = errors.New("invalid destination")
	// ErrInvalidComponentType 路由目标的触发方式无法投递
	ErrInvalidComponentType = errors.New("invalid component type")
	// ErrUnsupportedComponentType 本 stage 的触发方式无法分发
	ErrUnsupportedComponentType = errors.New("unsupported component type")
	// ErrDelivery fan-out 中至少一个投递失败
	ErrDelivery = errors.New("delivery failed")
	// ErrMalformedMessage 队列消息体不是合法 JSON
	ErrMalformedMessage = errors.New("malformed queue message")
	// ErrRoutingPanic 路由函数 panic
	ErrRoutingPanic = errors.New("routing func panic")
	// ErrUnspecifiedFailure handler 调用 Fail(nil)
	ErrUnspecifiedFailure = errors.New("unspecified failure")
	// ErrAlreadyCompleted 重复的完成信号，被忽略
	ErrAlreadyCompleted = errors.New("completion already signaled")
)

// DestinationFailure 单个目标的投递失败
type DestinationFailure struct {
	Destination string
	Err         error
}

// DeliveryError fan-out 的聚合错误，保留全部失败。
// errors.Is 可匹配 ErrDelivery 以及任一失败的原因。
type DeliveryError struct {
	Attempted int
	Failures  []DestinationFailure
}

func (e *DeliveryError) Error() string {
	if len(e.Failures) == 0 {
		return ErrDelivery.Error()
	}
	first := e.Failures[0]
	msg := fmt.Sprintf("%s: %d of %d destinations: %s: %v",
		ErrDelivery.Error(), len(e.Failures), e.Attempted, first.Destination, first.Err)
	if len(e.Failures) > 1 {
		rest := make([]string, 0, len(e.Failures)-1)
		for _, f := range e.Failures[1:] {
			rest = append(rest, f.Destination)
		}
		msg += " (also: " + strings.Join(rest, ", ") + ")"
	}
	return msg
}

// Unwrap 支持 errors.Is / errors.As 遍历所有失败
func (e *DeliveryError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures)+1)
	errs = append(errs, ErrDelivery)
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}
