package actions

// BuiltinConfig groups the configuration of every executor.
type BuiltinConfig struct {
	Schedule ScheduleConfig
	Email    EmailConfig
	Invoice  InvoiceConfig
	Payment  PaymentConfig
}

// RegisterBuiltins registers one executor per action kind and fails if any
// kind in the lookup table is left without one.
func RegisterBuiltins(reg *Registry, cfg BuiltinConfig) error {
	all := []Executor{
		NewScheduleExecutor(cfg.Schedule),
		NewInvoiceExecutor(cfg.Invoice),
		NewPaymentExecutor(cfg.Payment),
		NewEmailExecutor(cfg.Email),
	}
	for _, e := range all {
		if err := reg.Register(e); err != nil {
			return err
		}
	}
	return reg.Complete()
}
