package main

import (
	"fmt"

	"github.com/sarchlab/akita/v4/sim"
	"github.com/sirupsen/logrus"

	"github.com/sarchlab/armsim/emu"
	"github.com/sarchlab/armsim/insts"
)

// logHook forwards diagnostics to a logrus logger and, when trace is set,
// logs every executed instruction at debug level.
type logHook struct {
	logger logrus.FieldLogger
	trace  bool
}

func (h *logHook) Func(ctx sim.HookCtx) {
	switch ctx.Pos {
	case emu.HookPosDiagnostic:
		d := ctx.Item.(emu.Diagnostic)
		entry := h.logger.WithFields(logrus.Fields{
			"severity": d.Severity.String(),
			"pc":       fmt.Sprintf("0x%08x", d.Address),
		})
		switch d.Severity {
		case emu.SeverityInfo:
			entry.Info(d.Text)
		case emu.SeverityWarning:
			entry.Warn(d.Text)
		default:
			entry.Error(d.Text)
		}
	case emu.HookPosStep:
		if !h.trace {
			return
		}
		inst := ctx.Item.(insts.Instruction)
		h.logger.WithFields(logrus.Fields{
			"pc": fmt.Sprintf("0x%08x", ctx.Detail.(uint32)),
		}).Debug(inst.String())
	}
}
