package main

import (
	"strings"

	"github.com/gosandol/ansimssi/internal/stream"
)

// cannedAnswer is one scripted health answer the simulator can stream.
type cannedAnswer struct {
	keywords   []string
	body       string
	sources    []stream.Source
	academic   []stream.Paper
	related    []string
	disclaimer string
}

const defaultDisclaimer = "본 답변은 참고용 정보이며 의료진의 진단을 대신하지 않습니다."

var catalog = []cannedAnswer{
	{
		keywords: []string{"감기", "기침", "콧물"},
		body: "감기는 대부분 바이러스 감염으로 생기며 충분한 휴식과 수분 섭취가 가장 중요합니다. " +
			"미지근한 물을 자주 마시고 실내 습도를 50% 정도로 유지해 주세요. " +
			"증상이 일주일 이상 지속되거나 고열이 동반되면 가까운 의원을 방문하시는 것이 좋습니다.",
		sources: []stream.Source{
			{Title: "질병관리청 감기 안내", URL: "https://kdca.go.kr/contents/cold", IsSolution: true},
			{Title: "국민건강보험 건강정보", URL: "https://nhis.or.kr/health/cold"},
		},
		academic: []stream.Paper{
			{Title: "Common cold management in primary care", Link: "https://example.org/papers/cold", Year: "2021"},
		},
		related:    []string{"감기에 좋은 음식은?", "감기약과 커피를 같이 마셔도 되나요?", "독감과 감기의 차이는?"},
		disclaimer: defaultDisclaimer,
	},
	{
		keywords: []string{"두통", "머리"},
		body: "두통은 수면 부족, 스트레스, 탈수 등 다양한 원인으로 생깁니다. " +
			"우선 조용한 곳에서 휴식을 취하고 물을 한 잔 마셔 보세요. " +
			"갑자기 심한 두통이 오거나 구토, 시야 이상이 함께 나타나면 즉시 진료가 필요합니다.",
		sources: []stream.Source{
			{Title: "대한두통학회 환자 안내", URL: "https://headache.or.kr/guide", IsSolution: true},
		},
		related:    []string{"편두통에 좋은 습관은?", "두통약은 하루에 몇 번까지 먹어도 되나요?"},
		disclaimer: defaultDisclaimer,
	},
	{
		keywords: []string{"타이레놀", "해열제", "진통제"},
		body: "타이레놀(아세트아미노펜)은 성인 기준 1회 500mg~1000mg을 4~6시간 간격으로 복용하며 " +
			"하루 4000mg을 넘기면 안 됩니다. 음주 후 복용은 간에 부담을 줄 수 있으니 피해 주세요.",
		sources: []stream.Source{
			{Title: "식품의약품안전처 의약품 정보", URL: "https://mfds.go.kr/drug/acetaminophen", IsSolution: true},
		},
		related:    []string{"빈속에 타이레놀을 먹어도 되나요?", "타이레놀과 부루펜의 차이는?"},
		disclaimer: defaultDisclaimer,
	},
}

var fallbackAnswer = cannedAnswer{
	body: "말씀해 주신 내용만으로는 정확한 안내가 어렵습니다. " +
		"증상이 언제부터 시작됐는지, 어느 부위가 불편한지 조금 더 알려 주시면 도움을 드릴 수 있어요.",
	related:    []string{"감기 증상 알려줘", "두통 원인이 궁금해요"},
	disclaimer: defaultDisclaimer,
}

// pickAnswer matches the first catalog entry whose keyword appears in the
// query.
func pickAnswer(query string) cannedAnswer {
	for _, a := range catalog {
		for _, k := range a.keywords {
			if strings.Contains(query, k) {
				return a
			}
		}
	}
	return fallbackAnswer
}

// chunks splits body text into small delta fragments, splitting on rune
// boundaries so multi-byte Hangul never tears.
func chunks(s string, size int) []string {
	r := []rune(s)
	var out []string
	for len(r) > 0 {
		n := size
		if n > len(r) {
			n = len(r)
		}
		out = append(out, string(r[:n]))
		r = r[n:]
	}
	return out
}

var cannedSuggestions = []suggestion{
	{Query: "감기 빨리 낫는 법", Label: "감기 빨리 낫는 법", Type: "remote"},
	{Query: "감기 전염 기간", Label: "감기는 언제까지 전염되나요", Type: "remote"},
	{Query: "두통에 좋은 음식", Label: "두통에 좋은 음식", Type: "remote"},
	{Query: "타이레놀 복용 간격", Label: "타이레놀 복용 간격", Type: "remote"},
	{Query: "혈압 낮추는 방법", Label: "혈압 낮추는 방법", Type: "remote"},
	{Query: "당뇨에 좋은 운동", Label: "당뇨에 좋은 운동", Type: "remote"},
}
