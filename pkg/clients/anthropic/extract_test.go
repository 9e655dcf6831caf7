package anthropic

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/habitbloom/server/internal/domain/apperr"
)

const fullPayload = `{
	"summary": {
		"emotion_execution": "감정이 안정된 날 루틴 달성률이 높았어요.",
		"recovery": "흐트러져도 이틀 안에 돌아왔어요.",
		"language_shift": "메모의 어조가 점점 긍정적으로 변했어요.",
		"retention": "아침 스트레칭은 꾸준히 유지됐어요.",
		"next_strategy": "다음 달에는 취침 루틴에 집중해 보세요."
	},
	"detail": {
		"emotion_execution": {"text": "평온한 날의 달성률이 80%를 넘었습니다. 반대로 무기력한 날에는 절반 아래로 떨어졌습니다. 감정이 실행의 선행 지표로 보입니다.", "actions": ["기분이 가라앉은 날은 최소 루틴만 목표로 하기", "저녁에 감정 체크인 추가하기"]},
		"recovery": {"text": "중순에 흐름이 끊겼지만 스스로 복귀했습니다. 회복 탄력이 좋은 편입니다. 복귀 트리거를 기록해 두면 좋겠습니다.", "actions": ["복귀한 날의 상황을 메모로 남기기", "이틀 연속 공백이면 알림 받기"]},
		"language_shift": {"text": "월초에는 자책하는 표현이 많았습니다. 월말로 갈수록 중립적이고 담담한 표현이 늘었습니다. 좋은 신호입니다.", "actions": ["잘한 점 한 가지씩 메모에 적기", "부정 표현을 발견하면 다시 쓰기"]},
		"retention": {"text": "아침 스트레칭과 물 마시기는 거의 매일 지켰습니다. 이미 습관으로 자리잡았습니다. 유지 비용이 낮은 루틴입니다.", "actions": ["유지 중인 루틴은 그대로 두기", "새 루틴은 하나만 추가하기"]},
		"next_strategy": {"text": "취침 시간이 불규칙한 날 다음날 달성률이 낮았습니다. 다음 달은 취침 루틴을 핵심 목표로 잡는 것이 좋겠습니다. 작게 시작하세요.", "actions": ["자정 전 취침 주 4회 목표", "취침 1시간 전 화면 끄기"]}
	}
}`

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"prose wrapped", `Sure! {"a":1} Hope that helps.`, `{"a":1}`},
		{"nested objects", `result: {"a":{"b":{"c":1}}} done`, `{"a":{"b":{"c":1}}}`},
		{"brace inside string", `{"a":"val } with brace"}`, `{"a":"val } with brace"}`},
		{"escaped quote inside string", `{"a":"he said \"}\" ok"}`, `{"a":"he said \"}\" ok"}`},
		{"markdown fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSONObject(tt.text)
			if err != nil {
				t.Fatalf("ExtractJSONObject: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractJSONObjectNoBraces(t *testing.T) {
	_, err := ExtractJSONObject("이번 달은 전반적으로 안정적인 한 달이었습니다.")

	var malformed *apperr.MalformedOutputError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedOutputError, got %v", err)
	}
	if malformed.Stage != apperr.StageBraceNotFound {
		t.Errorf("stage = %s, want %s", malformed.Stage, apperr.StageBraceNotFound)
	}
}

func TestExtractJSONObjectUnbalanced(t *testing.T) {
	_, err := ExtractJSONObject(`{"summary": {"emotion_execution": "truncated`)

	var malformed *apperr.MalformedOutputError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedOutputError, got %v", err)
	}
	if malformed.Stage != apperr.StageJSONInvalid {
		t.Errorf("stage = %s, want %s", malformed.Stage, apperr.StageJSONInvalid)
	}
}

func TestParsePayloadValid(t *testing.T) {
	payload, err := ParsePayload("물론이죠! " + fullPayload + " 도움이 되었길 바라요.")
	if err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}

	for _, dim := range [...]string{"emotion_execution", "recovery", "language_shift", "retention", "next_strategy"} {
		if payload.Summary[dim] == "" {
			t.Errorf("summary.%s is empty", dim)
		}
		detail := payload.Detail[dim]
		if detail.Text == "" {
			t.Errorf("detail.%s.text is empty", dim)
		}
		if len(detail.Actions) != 2 {
			t.Errorf("detail.%s.actions has %d items, want 2", dim, len(detail.Actions))
		}
	}
}

func TestParsePayloadInvalidJSON(t *testing.T) {
	_, err := ParsePayload(`{"summary": {bad json}}`)

	var malformed *apperr.MalformedOutputError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedOutputError, got %v", err)
	}
	if malformed.Stage != apperr.StageJSONInvalid {
		t.Errorf("stage = %s, want %s", malformed.Stage, apperr.StageJSONInvalid)
	}
	if malformed.Raw == "" {
		t.Error("expected raw text retained for logging")
	}
}

func TestTruncateKeepsRuneBoundary(t *testing.T) {
	long := strings.Repeat("평온한 하루였다. ", 100) // well past the 500-byte cap

	got := truncate(long)

	if !strings.HasSuffix(got, "...") {
		t.Fatalf("long text should be truncated, got %d bytes", len(got))
	}
	if !utf8.ValidString(got) {
		t.Error("truncation split a multibyte character")
	}
	if len(got) > 503 {
		t.Errorf("truncated to %d bytes, want <= 503", len(got))
	}

	short := "짧은 메모"
	if truncate(short) != short {
		t.Error("short text must pass through unchanged")
	}
}

func TestParsePayloadSchemaIncomplete(t *testing.T) {
	// Syntactically valid, but detail.retention is missing entirely and
	// detail.recovery has no actions.
	text := `{
		"summary": {
			"emotion_execution": "a", "recovery": "b", "language_shift": "c",
			"retention": "d", "next_strategy": "e"
		},
		"detail": {
			"emotion_execution": {"text": "t", "actions": ["x", "y"]},
			"recovery": {"text": "t", "actions": []},
			"language_shift": {"text": "t", "actions": ["x"]},
			"next_strategy": {"text": "t", "actions": ["x"]}
		}
	}`

	_, err := ParsePayload(text)

	var malformed *apperr.MalformedOutputError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedOutputError, got %v", err)
	}
	if malformed.Stage != apperr.StageSchemaIncomplete {
		t.Fatalf("stage = %s, want %s", malformed.Stage, apperr.StageSchemaIncomplete)
	}

	missing := strings.Join(malformed.Missing, ",")
	if !strings.Contains(missing, "detail.retention") {
		t.Errorf("missing fields %v should name detail.retention", malformed.Missing)
	}
	if !strings.Contains(missing, "detail.recovery.actions") {
		t.Errorf("missing fields %v should name detail.recovery.actions", malformed.Missing)
	}
}
