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

package resource

import (
	"context"
	"encoding/json"

	"github.com/hashicorp/vault/api"

	"stagewrap/pkg/errors"
)

// VaultLoader 从 Vault KV 读取 resource map。
// 兼容 KV v1（secret.Data 即映射）与 v2（映射位于 secret.Data["data"]）；
// 每个值可以是对象，也可以是 JSON 字符串。
type VaultLoader struct {
	client *api.Client
	path   string
}

// NewVaultLoader 创建 Vault 加载器
func NewVaultLoader(client *api.Client, path string) *VaultLoader {
	return &VaultLoader{client: client, path: path}
}

// Load 实现 Loader
func (l *VaultLoader) Load(ctx context.Context) (Map, error) {
	secret, err := l.client.Logical().ReadWithContext(ctx, l.path)
	if err != nil {
		return nil, errors.Wrapf(err, "读取 vault %s", l.path)
	}
	if secret == nil || secret.Data == nil {
		return nil, errors.NotFoundf("vault secret %s", l.path)
	}
	data := secret.Data
	if inner, ok := data["data"].(map[string]interface{}); ok {
		data = inner
	}
	if len(data) == 0 {
		return nil, errors.Wrapf(ErrEmptyMap, "vault secret %s", l.path)
	}

	m := make(Map, len(data))
	for name, val := range data {
		ep, err := decodeEndpoints(val)
		if err != nil {
			return nil, errors.Wrapf(err, "解析 stage %q 的端点", name)
		}
		m[name] = ep
	}
	return m, nil
}

func decodeEndpoints(val interface{}) (Endpoints, error) {
	var raw []byte
	switch v := val.(type) {
	case string:
		raw = []byte(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return Endpoints{}, err
		}
		raw = b
	}
	var ep Endpoints
	if err := json.Unmarshal(raw, &ep); err != nil {
		return Endpoints{}, err
	}
	return ep, nil
}
