package skills

import (
	"context"

	"github.com/hubenschmidt/session-analyzer/internal/llm"
	"github.com/hubenschmidt/session-analyzer/internal/transcript"
)

func (e *Executor) runMentalHealth(ctx context.Context, s Skill, in Input, out *Outcome) error {
	self := transcript.SelfTurns(in.Turns)
	if len(self) == 0 {
		return errNoSelfSpeech
	}
	out.Prompt = BuildPrompt(s, in, transcript.JSON(self))
	text, err := e.generate(ctx, out.Prompt)
	if err != nil {
		return err
	}
	out.Raw = text

	var reply struct {
		Insight *MentalHealthInsight `json:"mental_health_insight"`
	}
	if err = llm.DecodeJSON(text, &reply); err != nil {
		return wrapDecode(KindMentalHealth, err)
	}
	ins := reply.Insight
	if ins == nil {
		ins = &MentalHealthInsight{}
		if err = llm.DecodeJSON(text, ins); err != nil {
			return wrapDecode(KindMentalHealth, err)
		}
	}
	ins.DefenseEnergyPct = max(0, min(ins.DefenseEnergyPct, 100))

	out.Card = &Card{SkillID: s.ID, SkillName: s.Name, ContentType: KindMentalHealth, MentalHealth: ins}
	return nil
}
