package schema

// Version of the committee extraction schema. Bump when fields change.
const Version = "1"

// Committee is the process-wide schema for medical committee decisions.
var Committee = New(Version, []Field{
	{
		Key:  KeyCommitteeType,
		Name: "committee_type",
		Hint: `סוג הועדה הרפואית כפי שמופיע בכותרת המסמך, למשל: "ועדה רפואית מדרג ראשון", "ועדה רפואית לעררים", "נכות כללית", "נפגעי עבודה".`,
	},
	{
		Key:  KeyCommitteeBranch,
		Name: "committee_branch",
		Hint: `שם סניף המוסד לביטוח לאומי שבו התכנסה הועדה, למשל: "תל אביב", "חיפה". ללא המילה "סניף" אם אינה חלק מהשם.`,
	},
	{
		Key:  KeyInsuredName,
		Name: "insured_name",
		Hint: `שם מלא של המבוטח (שם פרטי ושם משפחה). לא שם של רופא, חבר ועדה או מזכיר הועדה.`,
	},
	{
		Key:     KeyIDNumber,
		Name:    "id_number",
		Aliases: []string{"ת.ז.", "ת״ז", "תעודת זהות", "מספר זהות", "id"},
		Hint:    `מספר תעודת הזהות של המבוטח, ספרות בלבד (בדרך כלל 9 ספרות). לא מספר תיק ולא מספר סניף.`,
	},
	{
		Key:     KeyCommitteeDate,
		Name:    "committee_date",
		Aliases: []string{"תאריך ועדה", "תאריך"},
		Hint:    `התאריך שבו התכנסה הועדה, בפורמט DD/MM/YYYY. לא תאריך הפגיעה ולא תאריך משלוח המכתב.`,
	},
	{
		Key:     KeyInjuryDate,
		Name:    "injury_date",
		Aliases: []string{"תאריך הפגיעה"},
		Hint:    `תאריך הפגיעה או האירוע, רלוונטי רק לנפגעי עבודה ונפגעי איבה, בפורמט DD/MM/YYYY.`,
	},
	{
		Key:     KeyParticipants,
		Name:    "participants",
		Aliases: []string{"משתתפי הועדות", "חברי הועדה"},
		Hint:    `רשימת חברי הועדה שחתמו או השתתפו, כמערך של אובייקטים {"name": "...", "role": "..."}, למשל {"name": "ד״ר ישראל ישראלי", "role": "יו״ר"}.`,
	},
	{
		Key:     KeyDecisionPeriod,
		Name:    "decision_period",
		Aliases: []string{"תקופה", "תקופת נכות"},
		Hint:    `התקופה שעליה חלה ההחלטה: "מ-DD/MM/YYYY עד DD/MM/YYYY", או "צמית" כאשר הנכות נקבעה לצמיתות.`,
	},
	{
		Key:     KeyDiagnosis,
		Name:    "diagnosis",
		Aliases: []string{"אבחנות"},
		Hint:    `האבחנה הרפואית בטקסט חופשי כפי שנוסחה בפרוטוקול (למשל "כאבי גב תחתון עם הגבלה בתנועות"). אבחנה היא תיאור מילולי של המצב הרפואי, לעולם לא מספר סעיף. אם יש כמה אבחנות, הפרד ביניהן בנקודה-פסיק.`,
	},
	{
		Key:     KeyDeficiencyCode,
		Name:    "deficiency_code",
		Aliases: []string{"סעיפי ליקוי", "סעיף"},
		Hint:    `מספר הסעיף הפורמלי מתוך רשימת הליקויים בתקנות (מבחני נכות), למשל "37(7)(א)" או "35(1)(ב)". רק הקוד עצמו, בלי תיאור מילולי. אל תעתיק לכאן את האבחנה.`,
	},
	{
		Key:     KeyDisabilityPercentage,
		Name:    "disability_percentage",
		Aliases: []string{"אחוז הנכות", "אחוז נכות", "אחוזי נכות"},
		Hint:    `אחוז הנכות שנקבע בגין הפגיעה או הליקוי הספציפי, כמספר עם סימן אחוז (למשל "10%"). זה אינו האחוז הכולל או המשוקלל. אם נקבעו כמה אחוזים לתקופות שונות, ציין את כולם לפי הסדר.`,
	},
	{
		Key:     KeyWeightedDisability,
		Name:    "weighted_disability",
		Aliases: []string{"נכות משוקללת", "אחוז נכות כולל", "נכות כוללת"},
		Hint:    `אחוז הנכות הכולל (המשוקלל) שנקבע למבוטח מכלל הליקויים, אם מופיע במפורש. אל תחשב בעצמך.`,
	},
	{
		Key:     KeyDecisions,
		Name:    "decisions",
		Aliases: []string{"החלטה", "החלטות הועדה"},
		Hint:    `מערך של כל השורות בטבלת ההחלטות, כל שורה כאובייקט {"אבחנה": "...", "סעיף ליקוי": "...", "אחוז": "...", "מתאריך": "...", "עד תאריך": "..."}. שורה אחת לכל ליקוי ולכל תקופה.`,
	},
	{
		Key:     KeyNotes,
		Name:    "notes",
		Aliases: []string{"הערה", "נימוקים"},
		Hint:    `הערות נוספות או נימוקי הועדה, בקצרה. השאר null אם אין.`,
	},
})
