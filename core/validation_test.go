package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateExtractionTask(t *testing.T) {
	valid := func() *ExtractionTask {
		return &ExtractionTask{
			TaskID:      NewTaskID(),
			CompanyID:   "acme",
			SourceURL:   "https://example.com/doc.pdf",
			CallbackURL: "https://backend.example.com/cb",
		}
	}

	t.Run("valid task", func(t *testing.T) {
		assert.NoError(t, ValidateExtractionTask(valid()))
	})

	t.Run("nil task", func(t *testing.T) {
		assert.ErrorIs(t, ValidateExtractionTask(nil), ErrInvalidSubmission)
	})

	t.Run("empty source url", func(t *testing.T) {
		task := valid()
		task.SourceURL = ""
		err := ValidateExtractionTask(task)
		assert.ErrorIs(t, err, ErrInvalidSubmission)
		assert.ErrorIs(t, err, ErrEmptySourceURL)
	})

	t.Run("empty company id", func(t *testing.T) {
		task := valid()
		task.CompanyID = ""
		assert.ErrorIs(t, ValidateExtractionTask(task), ErrEmptyCompanyID)
	})

	t.Run("callback url optional", func(t *testing.T) {
		task := valid()
		task.CallbackURL = ""
		assert.NoError(t, ValidateExtractionTask(task))
	})

	t.Run("bad callback scheme", func(t *testing.T) {
		task := valid()
		task.CallbackURL = "ftp://backend.example.com/cb"
		assert.ErrorIs(t, ValidateExtractionTask(task), ErrInvalidCallbackURL)
	})
}

func TestValidateJobState(t *testing.T) {
	for _, state := range []JobState{JobPending, JobProcessing, JobCompleted, JobFailed} {
		assert.NoError(t, ValidateJobState(state))
	}
	assert.ErrorIs(t, ValidateJobState(JobState("queued")), ErrInvalidTransition)
	assert.ErrorIs(t, ValidateJobState(JobState("")), ErrInvalidTransition)
}

func TestIsValidCallbackURL(t *testing.T) {
	assert.True(t, IsValidCallbackURL("https://example.com/cb"))
	assert.True(t, IsValidCallbackURL("http://localhost:8080/cb"))
	assert.False(t, IsValidCallbackURL("ftp://example.com/cb"))
	assert.False(t, IsValidCallbackURL("https://"))
	assert.False(t, IsValidCallbackURL("not a url at all ://"))
	assert.False(t, IsValidCallbackURL(""))
}
