// Package verdict 负责摄像头判定的归一化与去抖
//
// 摄像头通过 MQTT 上报原始标签字符串和置信度，标签格式为
// "<index> <Name>"（来自模型标签文件，如 "0 Asleep"）或自由文本。
// 本包把标签归一化为内部枚举，再经置信度加权去抖器过滤单帧噪声，
// 只有通过主导占比和置信度质量双重检验的判定才会进入状态机。
package verdict

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oferElz/Nappi/internal/models"
)

// ErrUnknownVerdict 无法识别的标签文本；该次观测被丢弃，不向上游传播
var ErrUnknownVerdict = errors.New("unknown verdict label")

// ParseLabel 将原始标签文本归一化为 Verdict 枚举
//
// 标签文件格式为 "0 Asleep"、"1 Awake"、"2 No Baby Found"，
// 先去掉数字索引前缀，再做大小写无关匹配。
func ParseLabel(raw string) (models.Verdict, error) {
	label := strings.TrimSpace(raw)

	// 去掉 "<index> " 前缀
	if len(label) > 2 && label[0] >= '0' && label[0] <= '9' && label[1] == ' ' {
		label = label[2:]
	}

	switch foldLabel(label) {
	case "asleep":
		return models.VerdictAsleep, nil
	case "awake":
		return models.VerdictAwake, nil
	case "nobabyfound":
		return models.VerdictNoBabyFound, nil
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownVerdict, raw)
}

// Normalize 归一化一次原始观测（标签 + 置信度）
// 置信度被截断到 [0,100]；标签无法识别时返回 ErrUnknownVerdict
func Normalize(rawLabel string, confidence int, at time.Time) (models.Observation, error) {
	v, err := ParseLabel(rawLabel)
	if err != nil {
		return models.Observation{}, err
	}

	if confidence < 0 {
		confidence = 0
	}
	if confidence > 100 {
		confidence = 100
	}

	return models.Observation{
		Verdict:    v,
		Confidence: confidence,
		Timestamp:  at,
	}, nil
}

// foldLabel 大小写无关比较键（去掉空格、下划线和连字符）
func foldLabel(label string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(label) {
		if r == ' ' || r == '_' || r == '-' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
