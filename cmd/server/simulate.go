package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/KirkDiggler/rpg-toolkit/dice"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/KirkDiggler/rpg-skill-engine/internal/config"
	"github.com/KirkDiggler/rpg-skill-engine/internal/entities/battle"
	"github.com/KirkDiggler/rpg-skill-engine/internal/errors"
	"github.com/KirkDiggler/rpg-skill-engine/internal/orchestrators/round"
	"github.com/KirkDiggler/rpg-skill-engine/internal/pkg/clock"
	"github.com/KirkDiggler/rpg-skill-engine/internal/telemetry"
)

var scenarioPath string

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Replay a YAML battle scenario against an in-process engine",
	Long: `Simulate runs the steps of a scenario file in order and prints every outcome, the final
session and a per operation report as JSON. Failed steps are reported and the run continues.`,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().StringVar(&scenarioPath, "scenario", "", "path to a scenario YAML file")
	_ = simulateCmd.MarkFlagRequired("scenario")
}

type scenario struct {
	Channel string `yaml:"channel"`
	// Rolls are returned by the dice roller in order before it falls back to random
	Rolls        []int                 `yaml:"rolls"`
	Participants []scenarioParticipant `yaml:"participants"`
	Steps        []scenarioStep        `yaml:"steps"`
}

type scenarioParticipant struct {
	ID    string   `yaml:"id"`
	Name  string   `yaml:"name"`
	Roles []string `yaml:"roles"`
	HP    int      `yaml:"hp"`
	MaxHP int      `yaml:"max_hp"`
}

func (p scenarioParticipant) participant() battle.Participant {
	roles := make([]battle.Role, len(p.Roles))
	for i, r := range p.Roles {
		roles[i] = battle.Role(r)
	}
	return battle.Participant{ID: p.ID, Name: p.Name, Roles: roles, HP: p.HP, MaxHP: p.MaxHP}
}

// scenarioStep holds exactly one action
type scenarioStep struct {
	StartRound bool                 `yaml:"start_round"`
	EndRound   bool                 `yaml:"end_round"`
	Event      *eventStep           `yaml:"event"`
	Damage     *hpStep              `yaml:"damage"`
	Heal       *hpStep              `yaml:"heal"`
	Roll       *rollStep            `yaml:"roll"`
	Advance    string               `yaml:"advance"` // instance id or skill id
	Cancel     string               `yaml:"cancel"`  // instance id or skill id
	Add        *scenarioParticipant `yaml:"add"`
	Remove     string               `yaml:"remove"`
	Roles      *rolesStep           `yaml:"roles"`
	Save       bool                 `yaml:"save"`
}

type eventStep struct {
	Actor   string   `yaml:"actor"`
	Skill   string   `yaml:"skill"`
	Targets []string `yaml:"targets"`
	Dice    *int     `yaml:"dice"`
}

type hpStep struct {
	Target string `yaml:"target"`
	Amount int    `yaml:"amount"`
}

type rollStep struct {
	Actor    string `yaml:"actor"`
	Notation string `yaml:"notation"`
	Value    *int   `yaml:"value"`
}

type rolesStep struct {
	Participant string   `yaml:"participant"`
	Roles       []string `yaml:"roles"`
}

type stepReport struct {
	Step   int    `json:"step"`
	Op     string `json:"op"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type simulationReport struct {
	SessionID  string              `json:"session_id"`
	Steps      []stepReport        `json:"steps"`
	Final      *battle.Session     `json:"final"`
	Operations []telemetry.Summary `json:"operations"`
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg.Engine.DeterministicIDs = true

	sc, err := loadScenario(scenarioPath)
	if err != nil {
		return err
	}

	eng, err := buildEngine(cmd.Context(), cfg, zap.NewNop(), engineOptions{
		Roller:   newScriptedRoller(sc.Rolls, dice.DefaultRoller),
		Clock:    clock.NewManual(time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)),
		InMemory: true,
	})
	if err != nil {
		return err
	}
	defer eng.Close(zap.NewNop())

	report, err := runScenario(cmd.Context(), eng, sc)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func loadScenario(path string) (*scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read scenario %s", path)
	}

	var sc scenario
	if err := yaml.Unmarshal(raw, &sc); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeInvalidArgument, "failed to parse scenario")
	}
	if sc.Channel == "" {
		sc.Channel = "simulation"
	}
	return &sc, nil
}

// runScenario creates the session, adds the roster and plays every step.
// Only setup failures abort the run.
func runScenario(ctx context.Context, eng *engine, sc *scenario) (*simulationReport, error) {
	created, err := eng.Round.CreateSession(ctx, &round.CreateSessionInput{ChannelID: sc.Channel})
	if err != nil {
		return nil, err
	}
	sessionID := created.Session.ID

	for _, p := range sc.Participants {
		if _, err := eng.Round.AddParticipant(ctx, &round.AddParticipantInput{
			SessionID:   sessionID,
			Participant: p.participant(),
		}); err != nil {
			return nil, errors.Wrapf(err, "failed to add participant %s", p.ID)
		}
	}

	report := &simulationReport{SessionID: sessionID}
	for i, step := range sc.Steps {
		op, result, err := playStep(ctx, eng.Round, sessionID, step)
		sr := stepReport{Step: i + 1, Op: op, Result: result}
		if err != nil {
			sr.Result = nil
			sr.Error = errors.GetMessage(err)
			sr.Reason = errors.GetReason(err).String()
		}
		report.Steps = append(report.Steps, sr)
	}

	final, err := eng.Round.GetSession(ctx, &round.GetSessionInput{SessionID: sessionID})
	if err != nil {
		return nil, err
	}
	report.Final = final.Session
	report.Operations = eng.Recorder.Summaries()

	return report, nil
}

func playStep(ctx context.Context, svc round.Service, sessionID string, step scenarioStep) (string, any, error) {
	switch {
	case step.StartRound:
		out, err := svc.StartRound(ctx, &round.StartRoundInput{SessionID: sessionID})
		return "start_round", out, err
	case step.EndRound:
		out, err := svc.EndRound(ctx, &round.EndRoundInput{SessionID: sessionID})
		return "end_round", out, err
	case step.Event != nil:
		out, err := svc.HandleEvent(ctx, &round.HandleEventInput{
			SessionID: sessionID,
			ActorID:   step.Event.Actor,
			SkillID:   step.Event.Skill,
			TargetIDs: step.Event.Targets,
			Dice:      step.Event.Dice,
		})
		if err != nil {
			return "event", nil, err
		}
		return "event", out.Outcome, nil
	case step.Damage != nil:
		out, err := svc.ApplyDamage(ctx, &round.ApplyDamageInput{
			SessionID:     sessionID,
			ParticipantID: step.Damage.Target,
			Amount:        step.Damage.Amount,
		})
		return "damage", out, err
	case step.Heal != nil:
		out, err := svc.Heal(ctx, &round.HealInput{
			SessionID:     sessionID,
			ParticipantID: step.Heal.Target,
			Amount:        step.Heal.Amount,
		})
		return "heal", out, err
	case step.Roll != nil:
		out, err := svc.RollDice(ctx, &round.RollDiceInput{
			SessionID: sessionID,
			ActorID:   step.Roll.Actor,
			Notation:  step.Roll.Notation,
			Value:     step.Roll.Value,
		})
		return "roll", out, err
	case step.Advance != "":
		instanceID, err := findInstance(ctx, svc, sessionID, step.Advance)
		if err != nil {
			return "advance", nil, err
		}
		out, err := svc.AdvancePhase(ctx, &round.AdvancePhaseInput{SessionID: sessionID, InstanceID: instanceID})
		return "advance", out, err
	case step.Cancel != "":
		instanceID, err := findInstance(ctx, svc, sessionID, step.Cancel)
		if err != nil {
			return "cancel", nil, err
		}
		out, err := svc.CancelSkill(ctx, &round.CancelSkillInput{SessionID: sessionID, InstanceID: instanceID})
		return "cancel", out, err
	case step.Add != nil:
		out, err := svc.AddParticipant(ctx, &round.AddParticipantInput{
			SessionID:   sessionID,
			Participant: step.Add.participant(),
		})
		return "add", out, err
	case step.Remove != "":
		out, err := svc.RemoveParticipant(ctx, &round.RemoveParticipantInput{
			SessionID:     sessionID,
			ParticipantID: step.Remove,
		})
		return "remove", out, err
	case step.Roles != nil:
		roles := make([]battle.Role, len(step.Roles.Roles))
		for i, r := range step.Roles.Roles {
			roles[i] = battle.Role(r)
		}
		out, err := svc.SetRoles(ctx, &round.SetRolesInput{
			SessionID:     sessionID,
			ParticipantID: step.Roles.Participant,
			Roles:         roles,
		})
		return "roles", out, err
	case step.Save:
		out, err := svc.Save(ctx, &round.SaveInput{SessionID: sessionID})
		if err != nil {
			return "save", nil, err
		}
		return "save", map[string]int64{"version": out.Version}, nil
	default:
		return "unknown", nil, errors.InvalidArgument("step has no action")
	}
}

// findInstance resolves a reference that is either an instance id or the id
// of an active skill
func findInstance(ctx context.Context, svc round.Service, sessionID, ref string) (string, error) {
	out, err := svc.GetSession(ctx, &round.GetSessionInput{SessionID: sessionID})
	if err != nil {
		return "", err
	}
	for _, inst := range out.Session.Instances {
		if inst.ID == ref || inst.SkillID == ref {
			return inst.ID, nil
		}
	}
	return "", battle.InstanceNotFound(ref)
}

// scriptedRoller hands out queued values before deferring to another roller
type scriptedRoller struct {
	mu       sync.Mutex
	values   []int
	fallback dice.Roller
}

func newScriptedRoller(values []int, fallback dice.Roller) *scriptedRoller {
	return &scriptedRoller{values: append([]int(nil), values...), fallback: fallback}
}

func (r *scriptedRoller) Roll(size int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.values) == 0 {
		return r.fallback.Roll(size)
	}
	v := r.values[0]
	r.values = r.values[1:]
	if v < 1 || v > size {
		return 0, fmt.Errorf("scripted roll %d does not fit a d%d", v, size)
	}
	return v, nil
}

func (r *scriptedRoller) RollN(count, size int) ([]int, error) {
	out := make([]int, count)
	for i := range out {
		v, err := r.Roll(size)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
