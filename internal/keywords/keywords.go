// Package keywords holds the search terms the collector iterates over.
package keywords

import "strings"

// defaultKeywords is the built-in term list. It intentionally contains
// repeats; callers run it through Unique.
var defaultKeywords = []string{
	"업적", "능력", "협업심", "리더십", "태도", "경영", "자기계발", "성공",
	"비즈니스", "인문", "소설", "과학", "예술", "역사", "철학", "심리",
	"교육", "문화", "정치", "경제", "창의성", "책임감", "효율성", "리더십",
	"협업", "정확성", "적응력", "분석력", "열정", "신뢰성", "시간관리", "투명성",
	"결정력", "성실성", "문제해결", "전문성", "의사소통", "동기부여", "감정지능", "팀워크",
	"멘토링", "자기계발", "유연성", "갈등관리", "목표달성", "학습", "공감", "창조성",
	"전략",
}

// Default returns a copy of the built-in keyword list.
func Default() []string {
	out := make([]string, len(defaultKeywords))
	copy(out, defaultKeywords)
	return out
}

// Unique removes repeated terms, keeping the first occurrence of each and
// the original order. Blank terms are dropped.
func Unique(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, k := range in {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
