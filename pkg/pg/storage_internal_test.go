package pg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLikePrefix(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `%`, likePrefix(""))
	assert.Equal(t, `te\_queue\_task\_emails\_%`, likePrefix("te_queue_task_emails_"))
	assert.Equal(t, `100\%\\%`, likePrefix(`100%\`))
}
