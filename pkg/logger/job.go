package logger

// ForJob returns a Logger that tags every message with job
func ForJob(l Logger, job string) Logger {
	if l == nil {
		return &EmptyLogger{}
	}
	return &jobLogger{Logger: l, job: job}
}

type jobLogger struct {
	Logger
	job string
}

func (j *jobLogger) Info(format string, args ...interface{}) {
	j.Logger.InfoWithJob(j.job, format, args...)
}

func (j *jobLogger) Error(format string, args ...interface{}) {
	j.Logger.ErrorWithJob(j.job, format, args...)
}

func (j *jobLogger) Debug(format string, args ...interface{}) {
	j.Logger.DebugWithJob(j.job, format, args...)
}

func (j *jobLogger) Notice(format string, args ...interface{}) {
	j.Logger.NoticeWithJob(j.job, format, args...)
}
