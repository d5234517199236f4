package identity

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"salesbridge-service/internal/domain/person"
	xerrors "salesbridge-service/internal/pkg/errors"
)

// ErrNoUsableIdentity is the resolver's only hard failure: the event
// matched nothing locally and the reported phone did not validate, so
// no contact may be created.
var ErrNoUsableIdentity = errors.New("no usable identity: no CRM match, no phone match, phone invalid")

// Reconciliation annotations posted to the conversation. The wording
// is shared with the CRM operators, so it stays in their language.
const (
	annotConsistent = "El teléfono proporcionado es correcto y coincide con el registrado.\n" +
		"Puedes continuar con la conversación."
	annotCreated = "El teléfono proporcionado es correcto.\n" +
		"Puedes continuar con la conversación."
	annotPhoneWrong = "El telefono enviado por el postulante es incorrecto.\n" +
		"Se usara el registrado en el CRM"
	annotPhoneConflict = "El teléfono enviado es válido, pero hay inconsistencias entre los contactos.\n" +
		"Puede continuar la conversacion, por favor de notificar al administrador."
	annotPhoneOtherParty = "El teléfono enviado es válido, pero actualmente está asociado a otro contacto en el CRM.\n" +
		"Por favor, revisa y actualiza la información en el CRM si es necesario para evitar confusiones."
)

// PersonStore is the slice of the local store the resolver needs.
type PersonStore interface {
	FindByParty(ctx context.Context, partyID, partyNumber *int64) (*person.Person, error)
	FindByPhone(ctx context.Context, phone string) (*person.Person, error)
	Create(ctx context.Context, p *person.Person) error
}

// PhoneValidator checks channel reachability of a number.
type PhoneValidator interface {
	Validate(ctx context.Context, number string) (bool, error)
}

// ContactRegistry creates contacts on the messaging platform.
type ContactRegistry interface {
	CreatePerson(ctx context.Context, phone, personType string) (string, error)
}

// PendingPhoneUpdate is a one-shot instruction to replace the stored
// phone after the remote identity write succeeds. Take consumes it.
type PendingPhoneUpdate struct {
	phone string
	taken bool
}

func NewPendingPhoneUpdate(phone string) *PendingPhoneUpdate {
	return &PendingPhoneUpdate{phone: phone}
}

func (u *PendingPhoneUpdate) Take() (string, bool) {
	if u == nil || u.taken {
		return "", false
	}
	u.taken = true
	return u.phone, true
}

// Resolution is the resolver's successful outcome.
type Resolution struct {
	Person        *person.Person
	Annotation    string
	Phone         string
	PhoneValid    bool
	Created       bool
	FlagForReview bool
	PendingPhone  *PendingPhoneUpdate
}

type Resolver struct {
	people    PersonStore
	validator PhoneValidator
	registry  ContactRegistry
	logger    *zap.Logger
}

func NewResolver(people PersonStore, validator PhoneValidator, registry ContactRegistry, logger *zap.Logger) *Resolver {
	return &Resolver{
		people:    people,
		validator: validator,
		registry:  registry,
		logger:    logger,
	}
}

// Resolve reconciles a sale event against the local contact store. The
// reported phone is normalized first; matching by CRM key and by phone
// happens independently, and the combination decides which record wins
// and what annotation the conversation gets.
func (r *Resolver) Resolve(ctx context.Context, partyID, partyNumber *int64, reportedPhone string) (*Resolution, error) {
	phone := NormalizePhone(reportedPhone)

	valid := false
	if phone != "" {
		v, err := r.validator.Validate(ctx, phone)
		if err != nil {
			// Fail closed: an unreachable validator means "invalid".
			r.logger.Warn("phone validator unavailable, treating phone as invalid",
				zap.String("phone", phone), zap.Error(err))
		} else {
			valid = v
		}
	}

	byParty, err := r.findByParty(ctx, partyID, partyNumber)
	if err != nil {
		return nil, err
	}
	byPhone, err := r.findByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}

	switch {
	case byParty != nil && byPhone != nil:
		return r.resolveBothMatches(byParty, byPhone, phone, valid), nil
	case byParty != nil:
		return r.resolvePartyOnly(byParty, phone, valid), nil
	case byPhone != nil:
		return &Resolution{
			Person:        byPhone,
			Annotation:    annotPhoneOtherParty,
			Phone:         phone,
			PhoneValid:    valid,
			FlagForReview: true,
		}, nil
	case valid:
		return r.createPerson(ctx, partyID, partyNumber, phone)
	default:
		return nil, ErrNoUsableIdentity
	}
}

func (r *Resolver) resolveBothMatches(byParty, byPhone *person.Person, phone string, valid bool) *Resolution {
	if byParty.Phone == byPhone.Phone {
		return &Resolution{Person: byParty, Annotation: annotConsistent, Phone: phone, PhoneValid: valid}
	}
	if !valid {
		return &Resolution{Person: byParty, Annotation: annotPhoneWrong, Phone: byParty.Phone, PhoneValid: false}
	}
	return &Resolution{
		Person:        byPhone,
		Annotation:    annotPhoneConflict,
		Phone:         phone,
		PhoneValid:    true,
		FlagForReview: true,
	}
}

func (r *Resolver) resolvePartyOnly(byParty *person.Person, phone string, valid bool) *Resolution {
	if byParty.Phone == phone {
		return &Resolution{Person: byParty, Annotation: annotConsistent, Phone: phone, PhoneValid: valid}
	}
	if !valid {
		return &Resolution{Person: byParty, Annotation: annotPhoneWrong, Phone: byParty.Phone, PhoneValid: false}
	}
	return &Resolution{
		Person:       byParty,
		Annotation:   annotConsistent,
		Phone:        phone,
		PhoneValid:   true,
		PendingPhone: NewPendingPhoneUpdate(phone),
	}
}

func (r *Resolver) createPerson(ctx context.Context, partyID, partyNumber *int64, phone string) (*Resolution, error) {
	var messagingID *string
	remoteID, err := r.registry.CreatePerson(ctx, phone, "CUSTOMER")
	if err != nil {
		// Local record is still created; the orchestrator aborts later
		// when it needs the remote identity and notifies the rep.
		r.logger.Error("remote contact creation failed", zap.String("phone", phone), zap.Error(err))
	} else if remoteID != "" {
		messagingID = &remoteID
	}

	p := &person.Person{
		PartyID:     partyID,
		PartyNumber: partyNumber,
		Phone:       phone,
		MessagingID: messagingID,
	}
	if err := r.people.Create(ctx, p); err != nil {
		return nil, err
	}

	return &Resolution{
		Person:     p,
		Annotation: annotCreated,
		Phone:      phone,
		PhoneValid: true,
		Created:    true,
	}, nil
}

func (r *Resolver) findByParty(ctx context.Context, partyID, partyNumber *int64) (*person.Person, error) {
	if partyID == nil && partyNumber == nil {
		return nil, nil
	}
	p, err := r.people.FindByParty(ctx, partyID, partyNumber)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

func (r *Resolver) findByPhone(ctx context.Context, phone string) (*person.Person, error) {
	if phone == "" {
		return nil, nil
	}
	p, err := r.people.FindByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}
