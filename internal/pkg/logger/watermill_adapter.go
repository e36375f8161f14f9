package logger

import "github.com/ThreeDotsLabs/watermill"

// WatermillAdapter routes watermill's internal logging through ILogger so
// pub/sub chatter ends up in the same sink as the rest of the process.
type WatermillAdapter struct {
	logger ILogger
	module string
	fields watermill.LogFields
}

func NewWatermillAdapter(log ILogger, module string) *WatermillAdapter {
	return &WatermillAdapter{logger: log, module: module}
}

func (a *WatermillAdapter) Error(msg string, err error, fields watermill.LogFields) {
	details := a.details(fields)
	if err != nil {
		details["error"] = err.Error()
	}
	a.logger.Error(a.module, msg, details)
}

// Info is logged at debug level: watermill reports per-message routing there.
func (a *WatermillAdapter) Info(msg string, fields watermill.LogFields) {
	a.logger.Debug(a.module, msg, a.details(fields))
}

func (a *WatermillAdapter) Debug(msg string, fields watermill.LogFields) {
	a.logger.Debug(a.module, msg, a.details(fields))
}

func (a *WatermillAdapter) Trace(msg string, fields watermill.LogFields) {
	a.logger.Debug(a.module, msg, a.details(fields))
}

func (a *WatermillAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &WatermillAdapter{logger: a.logger, module: a.module, fields: a.fields.Add(fields)}
}

func (a *WatermillAdapter) details(fields watermill.LogFields) map[string]interface{} {
	details := make(map[string]interface{}, len(a.fields)+len(fields))
	for k, v := range a.fields {
		details[k] = v
	}
	for k, v := range fields {
		details[k] = v
	}
	return details
}
