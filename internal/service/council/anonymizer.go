package council

import (
	"math/rand/v2"
	"strings"
)

const labelPrefix = "Response "

// shuffle 可在测试中替换
var shuffle = rand.Perm

// LabelMap 单轮 Stage 2 的匿名映射，双向且在本轮内固定
type LabelMap struct {
	labels       []string
	labelToModel map[string]string
	modelToLabel map[string]string
}

// Assign 为模型分配 "Response A"、"Response B"… 标签，每次调用重新洗牌
func Assign(models []string) *LabelMap {
	m := &LabelMap{
		labelToModel: make(map[string]string, len(models)),
		modelToLabel: make(map[string]string, len(models)),
	}
	unique := make([]string, 0, len(models))
	for _, model := range models {
		if _, dup := m.modelToLabel[model]; dup {
			continue
		}
		m.modelToLabel[model] = ""
		unique = append(unique, model)
	}

	perm := shuffle(len(unique))
	m.labels = make([]string, len(unique))
	for i, model := range unique {
		label := labelPrefix + labelLetters(perm[i])
		m.labelToModel[label] = model
		m.modelToLabel[model] = label
	}
	for i := range unique {
		m.labels[i] = labelPrefix + labelLetters(i)
	}
	return m
}

// labelLetters 0->A … 25->Z, 26->AA
func labelLetters(i int) string {
	var b []byte
	for i >= 0 {
		b = append([]byte{byte('A' + i%26)}, b...)
		i = i/26 - 1
	}
	return string(b)
}

// Labels 按字母顺序返回本轮所有标签
func (m *LabelMap) Labels() []string {
	return append([]string(nil), m.labels...)
}

func (m *LabelMap) Len() int {
	return len(m.labels)
}

// Model 标签反查模型
func (m *LabelMap) Model(label string) (string, bool) {
	model, ok := m.labelToModel[normalizeLabel(label)]
	return model, ok
}

// Label 模型查标签
func (m *LabelMap) Label(model string) (string, bool) {
	label, ok := m.modelToLabel[model]
	return label, ok && label != ""
}

// LabelToModel 返回副本，用于 stage2_complete 元信息
func (m *LabelMap) LabelToModel() map[string]string {
	out := make(map[string]string, len(m.labelToModel))
	for k, v := range m.labelToModel {
		out[k] = v
	}
	return out
}

func normalizeLabel(label string) string {
	fields := strings.Fields(label)
	if len(fields) != 2 || !strings.EqualFold(fields[0], strings.TrimSpace(labelPrefix)) {
		return label
	}
	return labelPrefix + strings.ToUpper(fields[1])
}
