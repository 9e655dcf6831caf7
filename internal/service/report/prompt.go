package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/habitbloom/server/internal/service/aggregate"
)

// PromptVersion is stamped onto every stored report so regenerated months
// remain comparable across prompt revisions.
const PromptVersion = "2025-07-monthly-v1"

// promptTemplate embeds the output schema the model must follow. The schema
// here and the validation in pkg/clients/anthropic both derive from
// models.AnalysisDimensions; change them together.
const promptTemplate = `다음은 사용자의 %s 한 달 습관 기록 요약입니다.

- 분석 기간: %s
- 기록한 날: 총 %d일
- 평균 루틴 달성률: %d%%
- 감정 분포: %s
- 하루 메모:
%s

위 기록을 바탕으로 월간 회고 리포트를 작성해 주세요.

다음 다섯 가지 관점으로 분석합니다.
1. emotion_execution: 감정과 루틴 실행의 연결 고리
2. recovery: 흐트러진 뒤 회복하는 패턴
3. language_shift: 메모에 드러난 언어/표현의 변화
4. retention: 이번 달에 유지할 만한 습관
5. next_strategy: 다음 달을 위한 전략

응답은 아래 스키마를 따르는 JSON 객체 하나만 출력하세요. JSON 외의 텍스트는 쓰지 마세요.
{
  "summary": {
    "emotion_execution": "1~2문장",
    "recovery": "1~2문장",
    "language_shift": "1~2문장",
    "retention": "1~2문장",
    "next_strategy": "1~2문장"
  },
  "detail": {
    "emotion_execution": { "text": "3~4문장", "actions": ["실천 제안 1", "실천 제안 2"] },
    "recovery": { "text": "3~4문장", "actions": ["실천 제안 1", "실천 제안 2"] },
    "language_shift": { "text": "3~4문장", "actions": ["실천 제안 1", "실천 제안 2"] },
    "retention": { "text": "3~4문장", "actions": ["실천 제안 1", "실천 제안 2"] },
    "next_strategy": { "text": "3~4문장", "actions": ["실천 제안 1", "실천 제안 2"] }
  }
}

summary의 각 항목은 공감하는 어조의 짧은 문장으로, detail의 text는 3~4문장으로,
actions에는 구체적인 실천 제안을 2개씩 담아 주세요.`

// BuildMonthlyPrompt renders the aggregates into the generation prompt.
// Pure string work; the render is deterministic for a given snapshot.
func BuildMonthlyPrompt(yearMonth string, snap *aggregate.Snapshot) string {
	return fmt.Sprintf(promptTemplate,
		yearMonth,
		yearMonth,
		snap.RecordDays,
		snap.AvgRoutineScore,
		formatMoodSummary(snap.MoodSummary),
		snap.NotesBlock,
	)
}

// formatMoodSummary renders the distribution as "평온(3일), 짜증(1일)",
// most frequent first, ties broken by label so the output is stable.
func formatMoodSummary(moods map[string]int) string {
	if len(moods) == 0 {
		return "(감정 기록 없음)"
	}

	labels := make([]string, 0, len(moods))
	for label := range moods {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if moods[labels[i]] != moods[labels[j]] {
			return moods[labels[i]] > moods[labels[j]]
		}
		return labels[i] < labels[j]
	})

	parts := make([]string, 0, len(labels))
	for _, label := range labels {
		parts = append(parts, fmt.Sprintf("%s(%d일)", label, moods[label]))
	}
	return strings.Join(parts, ", ")
}
