package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SubmissionState is the canonical workflow position of a submission
type SubmissionState string

const (
	StateSubmitted          SubmissionState = "submitted"
	StateProducerReview     SubmissionState = "producer_review"
	StateArranging          SubmissionState = "arranging"
	StateArrangementReview  SubmissionState = "arrangement_review"
	StateProducerProcessing SubmissionState = "producer_processing"
	StateQualityControl     SubmissionState = "quality_control"
	StateSoundEngineering   SubmissionState = "sound_engineering"
	StateCreativeWork       SubmissionState = "creative_work"
	StateFinalApproval      SubmissionState = "final_approval"
	StateCompleted          SubmissionState = "completed"
	StateRejected           SubmissionState = "rejected"
)

var AllStates = []SubmissionState{
	StateSubmitted,
	StateProducerReview,
	StateArranging,
	StateArrangementReview,
	StateProducerProcessing,
	StateQualityControl,
	StateSoundEngineering,
	StateCreativeWork,
	StateFinalApproval,
	StateCompleted,
	StateRejected,
}

func (s SubmissionState) Valid() bool {
	_, ok := stateStatus[s]
	return ok
}

// SubmissionStatus is the coarse status used for filtering. It is always
// derived from SubmissionState and never written independently.
type SubmissionStatus string

const (
	StatusDraft       SubmissionStatus = "draft"
	StatusPending     SubmissionStatus = "pending"
	StatusUnderReview SubmissionStatus = "under_review"
	StatusApproved    SubmissionStatus = "approved"
	StatusRejected    SubmissionStatus = "rejected"
	StatusCompleted   SubmissionStatus = "completed"
)

var stateStatus = map[SubmissionState]SubmissionStatus{
	StateSubmitted:          StatusPending,
	StateProducerReview:     StatusUnderReview,
	StateArranging:          StatusApproved,
	StateArrangementReview:  StatusUnderReview,
	StateProducerProcessing: StatusApproved,
	StateQualityControl:     StatusUnderReview,
	StateSoundEngineering:   StatusApproved,
	StateCreativeWork:       StatusApproved,
	StateFinalApproval:      StatusUnderReview,
	StateCompleted:          StatusCompleted,
	StateRejected:           StatusRejected,
}

// Status derives the coarse status. Unknown states map to draft.
func (s SubmissionState) Status() SubmissionStatus {
	if st, ok := stateStatus[s]; ok {
		return st
	}
	return StatusDraft
}

// StatesFor returns every state that derives to the given status
func StatesFor(status SubmissionStatus) []SubmissionState {
	var out []SubmissionState
	for _, s := range AllStates {
		if stateStatus[s] == status {
			out = append(out, s)
		}
	}
	return out
}

// BudgetLine is one item of a creative budget
type BudgetLine struct {
	Item   string          `json:"item"`
	Amount decimal.Decimal `json:"amount"`
}

type Submission struct {
	ID                      uuid.UUID        `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SongID                  uuid.UUID        `gorm:"type:uuid;not null;index" json:"song_id"`
	Song                    *Song            `gorm:"foreignKey:SongID" json:"song,omitempty"`
	MusicArrangerID         uuid.UUID        `gorm:"type:uuid;not null;index" json:"music_arranger_id"`
	ProposedSingerID        *uuid.UUID       `gorm:"type:uuid" json:"proposed_singer_id"`
	ApprovedSingerID        *uuid.UUID       `gorm:"type:uuid" json:"approved_singer_id"`
	AssignedSoundEngineerID *uuid.UUID       `gorm:"type:uuid;index" json:"assigned_sound_engineer_id"`
	AssignedCreativeID      *uuid.UUID       `gorm:"type:uuid;index" json:"assigned_creative_id"`
	ModifiedByProducer      *uuid.UUID       `gorm:"type:uuid" json:"modified_by_producer"`
	CurrentState            SubmissionState  `gorm:"type:varchar(40);not null;index" json:"current_state"`
	SubmissionStatus        SubmissionStatus `gorm:"type:varchar(20);not null;index" json:"submission_status"`

	ArrangementNotes      string           `gorm:"type:text" json:"arrangement_notes"`
	ArrangementFilePath   string           `gorm:"type:varchar(500)" json:"arrangement_file_path"`
	ArrangementFileURL    string           `gorm:"type:varchar(500)" json:"arrangement_file_url"`
	ArrangementFileName   string           `gorm:"type:varchar(255)" json:"arrangement_file_name"`
	ArrangementStarted    bool             `gorm:"not null;default:false" json:"arrangement_started"`
	ProducerNotes         string           `gorm:"type:text" json:"producer_notes"`
	ProducerFeedback      string           `gorm:"type:text" json:"producer_feedback"`
	ProcessingNotes       string           `gorm:"type:text" json:"processing_notes"`
	QCDecision            string           `gorm:"type:varchar(30)" json:"qc_decision"`
	QualityScore          *int             `json:"quality_score"`
	ImprovementAreas      datatypes.JSON   `gorm:"type:jsonb" json:"improvement_areas"`
	SoundEngineerFeedback string           `gorm:"type:text" json:"sound_engineer_feedback"`
	ProcessedAudioPath    string           `gorm:"type:varchar(500)" json:"processed_audio_path"`
	ProcessedAudioURL     string           `gorm:"type:varchar(500)" json:"processed_audio_url"`
	ScriptContent         string           `gorm:"type:text" json:"script_content"`
	StoryboardData        datatypes.JSON   `gorm:"type:jsonb" json:"storyboard_data"`
	BudgetData            datatypes.JSON   `gorm:"type:jsonb" json:"budget_data"`
	BudgetTotal           *decimal.Decimal `gorm:"type:numeric(15,2)" json:"budget_total"`
	RecordingDate         *time.Time       `json:"recording_date"`
	RecordingLocation     string           `gorm:"type:varchar(255)" json:"recording_location"`
	ShootingDate          *time.Time       `json:"shooting_date"`
	ShootingLocation      string           `gorm:"type:varchar(255)" json:"shooting_location"`
	RequestedDate         *time.Time       `json:"requested_date"`

	SubmittedAt                 *time.Time `json:"submitted_at"`
	ApprovedAt                  *time.Time `json:"approved_at"`
	RejectedAt                  *time.Time `json:"rejected_at"`
	CompletedAt                 *time.Time `json:"completed_at"`
	ArrangementStartedAt        *time.Time `json:"arrangement_started_at"`
	ArrangementCompletedAt      *time.Time `json:"arrangement_completed_at"`
	SoundEngineeringStartedAt   *time.Time `json:"sound_engineering_started_at"`
	SoundEngineeringCompletedAt *time.Time `json:"sound_engineering_completed_at"`
	QCCompletedAt               *time.Time `gorm:"column:qc_completed_at" json:"qc_completed_at"`
	CreativeWorkStartedAt       *time.Time `json:"creative_work_started_at"`
	CreativeWorkCompletedAt     *time.Time `json:"creative_work_completed_at"`
	ProcessedAt                 *time.Time `json:"processed_at"`
	ModifiedAt                  *time.Time `json:"modified_at"`

	Version            int        `gorm:"not null;default:1" json:"version"`
	ParentSubmissionID *uuid.UUID `gorm:"type:uuid" json:"parent_submission_id"`
	Revision           int        `gorm:"not null;default:0" json:"revision"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// BeforeSave keeps the derived status in step with the canonical state
func (s *Submission) BeforeSave(tx *gorm.DB) error {
	s.SubmissionStatus = s.CurrentState.Status()
	return nil
}

// IsOwnedBy reports whether the arranger owns the submission
func (s *Submission) IsOwnedBy(userID uuid.UUID) bool {
	return s.MusicArrangerID == userID
}
